package impairment

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseProfile decodes a YAML impairment profile. Keys not present in the
// profile keep the values from Default. The result is validated.
func ParseProfile(data []byte) (Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("decoding profile: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// LoadProfile reads and parses the profile in the given file
func LoadProfile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading profile %q: %w", path, err)
	}

	return ParseProfile(data)
}

// MarshalProfile encodes the configuration as a YAML profile
func MarshalProfile(c Config) ([]byte, error) {
	return yaml.Marshal(c)
}
