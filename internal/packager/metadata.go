package packager

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"go.mediahub.dev/mediahub/pkg/manifest"
)

// MetadataFilename is the well-known file, at the root of a package's input
// directory, that describes how to interpret the rest of the directory. It
// is itself excluded from the package's content.
const MetadataFilename = "metadata.yaml"

// Metadata is the user-authored description of a package being built.
type Metadata struct {
	Name   string       `yaml:"name"`
	Kind   manifest.Kind `yaml:"kind"`
	Target manifest.Kind `yaml:"target,omitempty"`
}

// readMetadata loads and validates the metadata file at the root of dir.
func readMetadata(dir string) (Metadata, error) {
	data, err := os.ReadFile(dir + string(os.PathSeparator) + MetadataFilename)
	if errors.Is(err, os.ErrNotExist) {
		return Metadata{}, MetadataMissingError{Root: dir}
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("packager: read %s: %w", MetadataFilename, err)
	}

	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("packager: parse %s: %w", MetadataFilename, err)
	}
	if m.Name == "" {
		return Metadata{}, fmt.Errorf("packager: %s: name is required", MetadataFilename)
	}
	switch m.Kind {
	case manifest.KindApp:
		if m.Target == "" {
			return Metadata{}, fmt.Errorf("packager: %s: kind app requires target", MetadataFilename)
		}
	case manifest.KindComic:
	default:
		return Metadata{}, fmt.Errorf("packager: %s: unknown kind %q", MetadataFilename, m.Kind)
	}
	return m, nil
}
