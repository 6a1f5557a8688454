package landmark

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	config := &Config{
		Subtype: "dock",
		Sources: []SourceConfig{{ID: "test", Topic: "test/topic"}},
	}

	handler := func(string, []byte, *Map, error) {}

	client, err := InitMQTT(config, handler)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_PublishOnly(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	t.Cleanup(func() {
		clientMu.Lock()
		globalClient = nil
		clientMu.Unlock()
	})
	config := &Config{
		MQTT:    MQTTConfig{Broker: "tcp://127.0.0.1:1"},
		Subtype: "dock",
		Sources: []SourceConfig{{ID: "local", File: "map.json"}},
	}

	client, err := InitMQTT(config, func(string, []byte, *Map, error) {})
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Disconnect()

	_, ok := client.GetSourceByTopic("local")
	assert.False(t, ok)
	assert.Same(t, client, GetMQTTClient())
}

func TestNewMQTTClient_DoesNotConnect(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://127.0.0.1:1")
	t.Cleanup(func() {
		clientMu.Lock()
		globalClient = nil
		clientMu.Unlock()
	})
	config := &Config{Subtype: "dock", Sources: []SourceConfig{{ID: "robot1", Topic: "fleet/robot1/map"}}}

	client, err := NewMQTTClient(config, nil)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.NotNil(t, client.GetClient())
	assert.False(t, client.IsConnected())
	assert.False(t, client.GetClient().IsConnected())
}

func TestInitMQTT_NilConfig(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://127.0.0.1:1")

	_, err := InitMQTT(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no configuration")
}

func TestMQTTClient_PublishOnlyConnect(t *testing.T) {
	config := &Config{Sources: []SourceConfig{{ID: "depot", ApiURL: "http://maps.local/depot"}}}
	mock, client := connectedMock(t, config, &recordingHandler{})

	assert.True(t, client.IsConnected())
	assert.Empty(t, mock.SubscribedTopics())
}

func TestMQTTClient_ConnectedHandlerRunsOnEveryConnect(t *testing.T) {
	config := &Config{Sources: []SourceConfig{{ID: "robot1", Topic: "fleet/robot1/map"}}}
	mock := NewMockClient()
	client := NewMQTTClientWithClient(mock, config, nil)
	mock.SetOnConnect(client.ConnectHandler())

	var calls int
	client.SetConnectedHandler(func() {
		// subscriptions are in place before the hook runs
		assert.Equal(t, []string{"fleet/robot1/map"}, mock.SubscribedTopics())
		calls++
	})

	require.NoError(t, mock.Connect().Error())
	client.onConnectionLost(mock, errors.New("broker restart"))
	require.NoError(t, mock.Connect().Error())
	assert.Equal(t, 2, calls)
}

func TestMQTTClient_DisconnectStopsRetries(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnectError(errors.New("connection refused"))
	client := NewMQTTClientWithClient(mock, &Config{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.connectWithRetry()
	}()

	client.Disconnect()
	client.Disconnect()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("connectWithRetry kept running after Disconnect")
	}
}

func TestResolveClientID(t *testing.T) {
	t.Setenv("MQTT_CLIENT_ID", "")

	generated := resolveClientID(&Config{})
	assert.True(t, strings.HasPrefix(generated, "posemark-"), generated)
	assert.Len(t, generated, len("posemark-")+8)
	assert.NotEqual(t, generated, resolveClientID(nil), "generated IDs must differ")

	assert.Equal(t, "from-config", resolveClientID(&Config{MQTT: MQTTConfig{ClientID: "from-config"}}))

	t.Setenv("MQTT_CLIENT_ID", "from-env")
	assert.Equal(t, "from-env", resolveClientID(&Config{MQTT: MQTTConfig{ClientID: "from-config"}}))
}

func TestMQTTClient_IsConnected(t *testing.T) {
	client := &MQTTClient{}
	assert.False(t, client.IsConnected(), "New client should not be connected")

	client.setConnected(true)
	assert.True(t, client.IsConnected(), "Client should be connected after setConnected(true)")

	client.setConnected(false)
	assert.False(t, client.IsConnected(), "Client should not be connected after setConnected(false)")
}

func TestMQTTClient_GetSourceByTopic(t *testing.T) {
	config := &Config{
		Sources: []SourceConfig{
			{ID: "robot1", Topic: "fleet/robot1/map"},
			{ID: "robot2", Topic: "fleet/robot2/map"},
			{ID: "depot", ApiURL: "http://maps.local/depot"},
		},
	}

	client := &MQTTClient{config: config}

	tests := []struct {
		name   string
		topic  string
		wantID string
		wantOK bool
	}{
		{"robot1 topic", "fleet/robot1/map", "robot1", true},
		{"robot2 topic", "fleet/robot2/map", "robot2", true},
		{"unknown topic", "unknown/topic", "", false},
		{"empty topic does not match api source", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID, gotOK := client.GetSourceByTopic(tt.topic)
			assert.Equal(t, tt.wantID, gotID)
			assert.Equal(t, tt.wantOK, gotOK)
		})
	}
}

func TestGetMQTTClient_NotInitialized(t *testing.T) {
	clientMu.Lock()
	globalClient = nil
	clientMu.Unlock()

	assert.Nil(t, GetMQTTClient())
}

// recordingHandler captures MessageHandler invocations.
type recordingHandler struct {
	mu    sync.Mutex
	calls []handlerCall
}

type handlerCall struct {
	sourceID string
	raw      []byte
	m        *Map
	err      error
}

func (r *recordingHandler) handle(sourceID string, raw []byte, m *Map, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, handlerCall{sourceID, raw, m, err})
}

func (r *recordingHandler) snapshot() []handlerCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]handlerCall(nil), r.calls...)
}

func connectedMock(t *testing.T, config *Config, rec *recordingHandler) (*MockClient, *MQTTClient) {
	t.Helper()
	mock := NewMockClient()
	client := NewMQTTClientWithClient(mock, config, rec.handle)
	mock.SetOnConnect(client.onConnect)

	token := mock.Connect()
	require.True(t, token.Wait())
	require.NoError(t, token.Error())
	return mock, client
}

func TestMQTTClient_SubscribesOnConnect(t *testing.T) {
	config := &Config{
		Sources: []SourceConfig{
			{ID: "robot1", Topic: "fleet/robot1/map"},
			{ID: "depot", ApiURL: "http://maps.local/depot"},
			{ID: "robot2", Topic: "fleet/robot2/map"},
		},
	}
	mock, client := connectedMock(t, config, &recordingHandler{})

	assert.True(t, client.IsConnected())
	assert.Equal(t, []string{"fleet/robot1/map", "fleet/robot2/map"}, mock.SubscribedTopics())
}

func TestMQTTClient_MessageFlow(t *testing.T) {
	config := &Config{Sources: []SourceConfig{{ID: "robot1", Topic: "fleet/robot1/map"}}}
	rec := &recordingHandler{}
	mock, _ := connectedMock(t, config, rec)

	mock.SimulateMessage("fleet/robot1/map", gzipBytes(t, []byte(sampleMapJSON)))
	mock.SimulateMessage("fleet/robot1/map", []byte("garbage"))
	mock.SimulateMessage("fleet/other/map", []byte(sampleMapJSON))

	calls := rec.snapshot()
	require.Len(t, calls, 2)

	assert.Equal(t, "robot1", calls[0].sourceID)
	require.NoError(t, calls[0].err)
	require.NotNil(t, calls[0].m)
	assert.Len(t, ExtractLandmarks(calls[0].m, "dock"), 1)

	assert.Equal(t, "robot1", calls[1].sourceID)
	assert.Error(t, calls[1].err)
	assert.Nil(t, calls[1].m)
	assert.Equal(t, []byte("garbage"), calls[1].raw)
}

func TestMQTTClient_SubscribeErrorIsLogged(t *testing.T) {
	config := &Config{Sources: []SourceConfig{{ID: "robot1", Topic: "fleet/robot1/map"}}}
	mock := NewMockClient()
	mock.SetSubscribeError(errors.New("not authorized"))
	client := NewMQTTClientWithClient(mock, config, nil)
	mock.SetOnConnect(client.onConnect)

	require.NoError(t, mock.Connect().Error())
	assert.True(t, client.IsConnected())
	assert.Empty(t, mock.SubscribedTopics())
}

func TestMQTTClient_ConnectionLost(t *testing.T) {
	config := &Config{Sources: []SourceConfig{{ID: "robot1", Topic: "fleet/robot1/map"}}}
	mock, client := connectedMock(t, config, &recordingHandler{})

	client.onConnectionLost(mock, errors.New("broker went away"))
	assert.False(t, client.IsConnected())
}

func TestMQTTClient_Disconnect(t *testing.T) {
	config := &Config{Sources: []SourceConfig{{ID: "robot1", Topic: "fleet/robot1/map"}}}
	mock, client := connectedMock(t, config, &recordingHandler{})

	client.Disconnect()
	assert.False(t, client.IsConnected())
	assert.False(t, mock.IsConnected())

	// Should not panic with nil mqtt.Client
	(&MQTTClient{isConnected: true}).Disconnect()
}

func TestMQTTClient_ConcurrentAccess(t *testing.T) {
	client := &MQTTClient{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				client.setConnected(j%2 == 0)
				_ = client.IsConnected()
			}
		}()
	}
	wg.Wait()
}

func TestMQTTClient_GetClient(t *testing.T) {
	mock := NewMockClient()
	client := NewMQTTClientWithClient(mock, &Config{}, nil)
	assert.Same(t, mock, client.GetClient())
}

func BenchmarkCreateMessageHandler(b *testing.B) {
	client := &MQTTClient{
		config:         &Config{Sources: []SourceConfig{{ID: "robot1", Topic: "fleet/robot1/map"}}},
		messageHandler: func(string, []byte, *Map, error) {},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = client.createMessageHandler("robot1")
	}
}
