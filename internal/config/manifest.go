package config

import "fmt"

// Manifest lists the artifacts one sync call should mirror. Callers that
// prune the cache must list the full authoritative set.
type Manifest struct {
	Artifacts []ManifestEntry `yaml:"artifacts"`
}

// ManifestEntry names one artifact by provider and provider-relative path.
type ManifestEntry struct {
	Provider string `yaml:"provider"`
	Path     string `yaml:"path"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	manifest := &Manifest{}
	if err := LoadYAML(path, manifest); err != nil {
		return nil, err
	}

	for i, entry := range manifest.Artifacts {
		if entry.Provider == "" {
			return nil, fmt.Errorf("manifest %s: artifact %d has no provider", path, i)
		}
		if entry.Path == "" {
			return nil, fmt.Errorf("manifest %s: artifact %d has no path", path, i)
		}
	}

	return manifest, nil
}
