package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileProfiles is the on-disk persona table (~/.monkey-coder/personas.yaml).
type FileProfiles struct {
	Personas map[string]ConstraintProfile `yaml:"personas"`
}

// LoadFile merges persona profiles from a YAML file into the registry.
// File entries override built-in profiles of the same name.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file FileProfiles
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse persona file %s: %w", path, err)
	}

	for name, profile := range file.Personas {
		profile.Name = name
		if profile.Weights == (RewardWeights{}) {
			profile.Weights = r.Resolve(DefaultProfileName).Weights
		}
		r.SetProfile(profile)
	}
	return nil
}
