package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML loads a YAML file into the provided structure.
func LoadYAML(path string, out interface{}) error {
	if path == "" {
		return fmt.Errorf("file path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(out); err != nil {
		return fmt.Errorf("failed to decode YAML from %s: %w", path, err)
	}

	return nil
}

// SaveYAML saves a structure to a YAML file.
func SaveYAML(path string, in interface{}) error {
	if path == "" {
		return fmt.Errorf("file path is empty")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	encoder := yaml.NewEncoder(f)
	encoder.SetIndent(2)

	if err := encoder.Encode(in); err != nil {
		return fmt.Errorf("failed to encode YAML to %s: %w", path, err)
	}

	return encoder.Close()
}

// FileExists checks whether a file exists and is readable.
func FileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
