package impairment

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

//go:embed presets/*.yaml
var presetFiles embed.FS

// ErrUnknownPreset is returned when there is no built-in profile with the given name
var ErrUnknownPreset = errors.New("unknown preset")

// Presets returns the names of the built-in profiles in alphabetical order
func Presets() []string {
	entries, err := presetFiles.ReadDir("presets")
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)

	return names
}

// Preset returns the built-in profile with the given name
func Preset(name string) (Config, error) {
	data, err := presetFiles.ReadFile(path.Join("presets", name+".yaml"))
	if err != nil {
		return Config{}, fmt.Errorf("%w %q: available presets are %s", ErrUnknownPreset, name, strings.Join(Presets(), ", "))
	}

	config, err := ParseProfile(data)
	if err != nil {
		return Config{}, fmt.Errorf("preset %q: %w", name, err)
	}

	return config, nil
}
