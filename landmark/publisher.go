package landmark

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPublishPrefix is the topic prefix when neither env nor config sets one.
const DefaultPublishPrefix = "posemark"

const publishTimeout = 2 * time.Second

// Publisher publishes extracted landmark sets to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	sets          map[string]LandmarkSet
	mu            sync.RWMutex
}

// NewPublisher creates a new landmark publisher.
// If client is nil, publishing is disabled (for testing).
func NewPublisher(client mqtt.Client) *Publisher {
	return NewPublisherWithPrefix(client, "")
}

// NewPublisherWithPrefix is NewPublisher with a config-supplied prefix.
// MQTT_PUBLISH_PREFIX takes precedence over prefix.
func NewPublisherWithPrefix(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        true, // late subscribers get the current landmark list
		sets:          make(map[string]LandmarkSet),
	}
}

// SourceTopic returns the per-source landmark topic
func (p *Publisher) SourceTopic(sourceID string) string {
	return fmt.Sprintf("%s/%s/landmarks", p.publishPrefix, sourceID)
}

// CombinedTopic returns the topic carrying every source's landmarks
func (p *Publisher) CombinedTopic() string {
	return fmt.Sprintf("%s/landmarks", p.publishPrefix)
}

// PublishLandmarks publishes a source's landmarks to its own topic and then
// republishes the combined list.
func (p *Publisher) PublishLandmarks(sourceID, subtype string, landmarks []Landmark) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	set := NewLandmarkSet(sourceID, subtype, landmarks)

	p.mu.Lock()
	p.sets[sourceID] = set
	p.mu.Unlock()

	if err := p.publishJSON(p.SourceTopic(sourceID), set); err != nil {
		log.Printf("[MQTT] error publishing landmarks for %s: %v", sourceID, err)
		return err
	}
	log.Printf("[MQTT] published %d landmarks for %s", len(set.Landmarks), sourceID)

	if err := p.publishCombined(); err != nil {
		log.Printf("[MQTT] error publishing combined landmarks: %v", err)
		return err
	}

	return nil
}

// combinedMessage is the payload of the combined topic
type combinedMessage struct {
	Sources   []LandmarkSet `json:"sources"`
	Timestamp int64         `json:"timestamp"`
}

func (p *Publisher) publishCombined() error {
	sets := p.GetAllLandmarkSets()
	if len(sets) == 0 {
		return nil
	}
	return p.publishJSON(p.CombinedTopic(), combinedMessage{
		Sources:   sets,
		Timestamp: time.Now().Unix(),
	})
}

func (p *Publisher) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling landmarks: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: timed out after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// GetLandmarkSet returns the last published set for a source
func (p *Publisher) GetLandmarkSet(sourceID string) (LandmarkSet, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set, ok := p.sets[sourceID]
	return set, ok
}

// GetAllLandmarkSets returns every published set ordered by source ID
func (p *Publisher) GetAllLandmarkSets() []LandmarkSet {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sets := make([]LandmarkSet, 0, len(p.sets))
	for _, set := range p.sets {
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].SourceID < sets[j].SourceID })
	return sets
}

// ClearSource forgets a source's landmarks (e.g. when its map disappears)
func (p *Publisher) ClearSource(sourceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sets, sourceID)
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
