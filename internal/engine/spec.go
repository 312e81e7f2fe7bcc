package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PatchSpec describes what to inject and how.
type PatchSpec struct {
	// Fragments are the real code fragments, in the order they should land
	// on markers (before optional shuffling).
	Fragments []string `yaml:"fragments"`

	// RandomizeOrder shuffles the combined plan once, before assignment.
	RandomizeOrder bool `yaml:"randomize_order"`

	// AddFakePatches appends exactly markerCount decoy fragments to the plan.
	AddFakePatches bool `yaml:"add_fake_patches"`

	// PreserveOriginal retains the pre-patch text in the outcome for audit.
	// It does not control whether patching occurs.
	PreserveOriginal bool `yaml:"preserve_original"`

	// TimeoutMs bounds sandbox execution. Zero = engine default.
	TimeoutMs int `yaml:"timeout_ms"`
}

// Timeout returns the execution bound, or zero when unset.
func (s PatchSpec) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Validate rejects malformed specifications. This is the one failure mode
// raised to the immediate caller instead of being recorded in an outcome.
func (s PatchSpec) Validate() error {
	if s.TimeoutMs < 0 {
		return fmt.Errorf("timeout_ms must be >= 0, got %d", s.TimeoutMs)
	}
	return nil
}

// LoadSpecFile reads a PatchSpec from a YAML file.
func LoadSpecFile(path string) (PatchSpec, error) {
	var spec PatchSpec
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("reading spec file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("parsing spec file %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return spec, fmt.Errorf("invalid spec file %s: %w", path, err)
	}
	return spec, nil
}
