package landmark

import (
	"time"

	"github.com/golang/geo/r3"
)

// Attribute keys and values used to tag pose markers in a map.
const (
	AttrType     = "type"
	AttrSubtype  = "subtype"
	AttrMarkerID = "marker_id"

	PoseMarkerType = "pose_marker"

	// MissingAttribute is returned by lookups when an attribute is absent.
	MissingAttribute = "none"
)

// Map is the in-memory vector map: an ordered polygon layer plus metadata.
// Maps are treated as read-only once decoded.
type Map struct {
	Class    string      `json:"__class"`
	MetaData MapMetaData `json:"metaData"`
	Polygons []Polygon   `json:"polygons"`
}

// MapMetaData contains map metadata
type MapMetaData struct {
	Version int    `json:"version"`
	Name    string `json:"name,omitempty"`
	Origin  string `json:"origin,omitempty"` // free-form projection/origin note, never interpreted
}

// Polygon is a map feature with string attributes and an ordered vertex list.
type Polygon struct {
	ID         int64      `json:"id"`
	Attributes Attributes `json:"attributes"`
	Vertices   []Vertex   `json:"vertices"`
}

// Attributes is a polygon's string-keyed attribute set.
type Attributes map[string]string

// AttributeOr returns the value stored under key, or def if the key is absent.
// A nil Attributes behaves like an empty one.
func (a Attributes) AttributeOr(key, def string) string {
	if v, ok := a[key]; ok {
		return v
	}
	return def
}

// AttributeOr is shorthand for p.Attributes.AttributeOr.
func (p *Polygon) AttributeOr(key, def string) string {
	return p.Attributes.AttributeOr(key, def)
}

// Vertex is a 3D point encoded as [x, y, z].
type Vertex [3]float64

// Vec converts the vertex to an r3.Vector.
func (v Vertex) Vec() r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// VertexFromVec converts an r3.Vector to a Vertex.
func VertexFromVec(v r3.Vector) Vertex {
	return Vertex{v.X, v.Y, v.Z}
}

// Position is a 3D position in map coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec converts the position to an r3.Vector.
func (p Position) Vec() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// PositionFromVec converts an r3.Vector to a Position.
func PositionFromVec(v r3.Vector) Position {
	return Position{X: v.X, Y: v.Y, Z: v.Z}
}

// Pose is a position plus orientation.
type Pose struct {
	Position    Position   `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// Landmark is a named pose derived from one pose marker polygon.
type Landmark struct {
	ID   string `json:"id"`
	Pose Pose   `json:"pose"`
}

// LandmarkSet is the landmark list extracted from one source's map.
type LandmarkSet struct {
	SourceID  string     `json:"sourceId"`
	Subtype   string     `json:"subtype"`
	Landmarks []Landmark `json:"landmarks"`
	Timestamp int64      `json:"timestamp"`
}

// NewLandmarkSet stamps a landmark list with the current time.
func NewLandmarkSet(sourceID, subtype string, landmarks []Landmark) LandmarkSet {
	if landmarks == nil {
		landmarks = []Landmark{}
	}
	return LandmarkSet{
		SourceID:  sourceID,
		Subtype:   subtype,
		Landmarks: landmarks,
		Timestamp: time.Now().Unix(),
	}
}

// SourceConfig defines one map source from the config file.
// A source is fed by at least one of: an MQTT topic, an HTTP API, a local file.
type SourceConfig struct {
	ID     string `yaml:"id" json:"id"`
	Topic  string `yaml:"topic,omitempty" json:"topic,omitempty"`
	ApiURL string `yaml:"apiUrl,omitempty" json:"apiUrl,omitempty"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
	Color  string `yaml:"color,omitempty" json:"color,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	MQTT            MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Subtype         string         `yaml:"subtype" json:"subtype"`
	VolumeThreshold *float64       `yaml:"volumeThreshold,omitempty" json:"volumeThreshold,omitempty"`
	RefreshInterval time.Duration  `yaml:"refreshInterval,omitempty" json:"refreshInterval,omitempty"` // API polling interval (default 60s)
	Sources         []SourceConfig `yaml:"sources" json:"sources"`
	GridSpacing     float64        `yaml:"gridSpacing,omitempty" json:"gridSpacing,omitempty"` // render grid spacing in map units (default 1)
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// DefaultRefreshInterval is used when the config does not set refreshInterval.
const DefaultRefreshInterval = 60 * time.Second

// GetSourceByID returns the source config for the given ID
func (c *Config) GetSourceByID(id string) *SourceConfig {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return &c.Sources[i]
		}
	}
	return nil
}

// EffectiveVolumeThreshold returns the configured threshold or DefaultVolumeThreshold.
func (c *Config) EffectiveVolumeThreshold() float64 {
	if c.VolumeThreshold != nil {
		return *c.VolumeThreshold
	}
	return DefaultVolumeThreshold
}

// EffectiveRefreshInterval returns the API polling interval.
func (c *Config) EffectiveRefreshInterval() time.Duration {
	if c.RefreshInterval > 0 {
		return c.RefreshInterval
	}
	return DefaultRefreshInterval
}

// HasTopics reports whether any source is fed over MQTT.
func (c *Config) HasTopics() bool {
	for _, s := range c.Sources {
		if s.Topic != "" {
			return true
		}
	}
	return false
}
