package landmark

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the service configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks required fields and source definitions
func (c *Config) Validate() error {
	if c.Subtype == "" {
		return fmt.Errorf("subtype is required")
	}
	if c.VolumeThreshold != nil && *c.VolumeThreshold < 0 {
		return fmt.Errorf("volumeThreshold must not be negative")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be defined")
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, sc := range c.Sources {
		if sc.ID == "" {
			return fmt.Errorf("sources[%d].id is required", i)
		}
		if seen[sc.ID] {
			return fmt.Errorf("sources[%d].id %q is duplicated", i, sc.ID)
		}
		seen[sc.ID] = true
		if sc.Topic == "" && sc.ApiURL == "" && sc.File == "" {
			return fmt.Errorf("sources[%d] needs a topic, apiUrl or file for %s", i, sc.ID)
		}
	}

	if c.HasTopics() && c.MQTT.Broker == "" && os.Getenv("MQTT_BROKER") == "" {
		return fmt.Errorf("mqtt.broker is required when a source uses a topic")
	}

	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
