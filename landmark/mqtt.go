package landmark

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTClient manages the MQTT connection and the map topic subscriptions
type MQTTClient struct {
	client         mqtt.Client
	config         *Config
	messageHandler MessageHandler
	onConnected    func()
	isConnected    bool
	mu             sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
}

// MessageHandler is called when a map message is received.
// Parameters: sourceID, rawPayload, mapData, error
type MessageHandler func(sourceID string, rawPayload []byte, mapData *Map, err error)

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT initializes the global MQTT client and starts connecting.
// If neither MQTT_BROKER nor mqtt.broker is set, MQTT is disabled and this returns nil.
func InitMQTT(config *Config, handler MessageHandler) (*MQTTClient, error) {
	client, err := NewMQTTClient(config, handler)
	if client != nil {
		client.Start()
	}
	return client, err
}

// NewMQTTClient builds the global MQTT client without connecting, so hooks
// can be registered before the first connect. A config without source topics
// yields a publish-only client.
func NewMQTTClient(config *Config, handler MessageHandler) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("[MQTT] disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil {
		return nil, fmt.Errorf("MQTT enabled but no configuration given")
	}
	if !config.HasTopics() {
		log.Println("[MQTT] no source topics configured, publishing only")
	}

	client := NewMQTTClientWithClient(nil, config, handler)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(resolveClientID(config))

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // keep subscriptions across reconnects
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	globalClient = client
	return client, nil
}

// Start connects in the background, retrying until connected or disconnected
func (c *MQTTClient) Start() {
	go c.connectWithRetry()
}

// resolveClientID picks the client ID from env, config, or a generated one.
// Generated IDs carry a random suffix so two instances never share a session.
func resolveClientID(config *Config) string {
	if id := os.Getenv("MQTT_CLIENT_ID"); id != "" {
		return id
	}
	if config != nil && config.MQTT.ClientID != "" {
		return config.MQTT.ClientID
	}
	return "posemark-" + uuid.NewString()[:8]
}

// GetMQTTClient returns the global MQTT client instance
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		select {
		case <-c.done:
			return
		default:
		}
		log.Println("[MQTT] connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected to broker")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying connection in %v...", retryDelay)
		select {
		case <-c.done:
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to every source topic, then runs the connected hook
// so state gathered while offline can be published.
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("[MQTT] connected, subscribing to map topics...")
	c.setConnected(true)
	c.subscribeAll(client)

	c.mu.RLock()
	hook := c.onConnected
	c.mu.RUnlock()
	if hook != nil {
		hook()
	}
}

// SetConnectedHandler registers fn to run after every (re)connect
func (c *MQTTClient) SetConnectedHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = fn
}

// ConnectHandler returns the paho on-connect callback of this client
func (c *MQTTClient) ConnectHandler() mqtt.OnConnectHandler {
	return c.onConnect
}

func (c *MQTTClient) subscribeAll(client mqtt.Client) {
	for _, source := range c.config.Sources {
		if source.Topic == "" {
			continue
		}

		log.Printf("[MQTT] subscribing to %s for source %s", source.Topic, source.ID)
		token := client.Subscribe(source.Topic, 0, c.createMessageHandler(source.ID))

		switch {
		case !token.WaitTimeout(5 * time.Second):
			log.Printf("[MQTT] timeout subscribing to %s", source.Topic)
		case token.Error() != nil:
			log.Printf("[MQTT] error subscribing to %s: %v", source.Topic, token.Error())
		default:
			log.Printf("[MQTT] subscribed to %s", source.Topic)
		}
	}
}

// onConnectionLost is called when the MQTT connection is lost.
// Auto-reconnect is enabled, so this is typically transient.
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] reconnecting...")
}

// createMessageHandler creates a handler for one source's map topic
func (c *MQTTClient) createMessageHandler(sourceID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("[MQTT] received map for %s (topic: %s, size: %d bytes)",
			sourceID, msg.Topic(), len(payload))

		mapData, err := DecodeMapData(payload)
		if err != nil {
			log.Printf("[MQTT] error decoding map for %s: %v", sourceID, err)
			if c.messageHandler != nil {
				c.messageHandler(sourceID, payload, nil, err)
			}
			return
		}

		if c.messageHandler != nil {
			c.messageHandler(sourceID, payload, mapData, nil)
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect stops connection retries and closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	c.stopOnce.Do(func() {
		if c.done != nil {
			close(c.done)
		}
	})
	if c.client != nil {
		log.Println("[MQTT] disconnecting from broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetSourceByTopic returns the source ID subscribed to a topic
func (c *MQTTClient) GetSourceByTopic(topic string) (string, bool) {
	for _, source := range c.config.Sources {
		if source.Topic != "" && source.Topic == topic {
			return source.ID, true
		}
	}
	return "", false
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// NewMQTTClientWithClient wraps an existing mqtt.Client such as MockClient.
// The caller owns connecting it; ConnectHandler must be wired as its
// on-connect callback for subscriptions to happen.
func NewMQTTClientWithClient(client mqtt.Client, config *Config, handler MessageHandler) *MQTTClient {
	return &MQTTClient{
		client:         client,
		config:         config,
		messageHandler: handler,
		done:           make(chan struct{}),
	}
}
