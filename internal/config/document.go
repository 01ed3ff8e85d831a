// Package config implements config.Document loading and validation,
// grounded on redpanda-data-connect's direct gopkg.in/yaml.v3 dependency
// and on original_source's YamlReaderConfiguration version gate.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ddspipe/ddspipe/internal/ddserrors"
	configpkg "github.com/ddspipe/ddspipe/pkg/config"
)

// minMajorVersion is the lowest configuration version this process
// accepts, per spec.md §6 ("version < v4.0 is rejected").
const minMajorVersion = 4

// Load parses a YAML document from raw and validates its version.
func Load(raw []byte) (configpkg.Document, error) {
	var doc configpkg.Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return configpkg.Document{}, ddserrors.NewConfiguration("malformed YAML: %v", err)
	}
	if err := validateVersion(doc.Version); err != nil {
		return configpkg.Document{}, err
	}
	return doc, nil
}

// LoadFile reads path and delegates to Load.
func LoadFile(path string) (configpkg.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return configpkg.Document{}, ddserrors.NewConfiguration("reading %s: %v", path, err)
	}
	return Load(raw)
}

// Save renders doc back to YAML, the inverse of Load used by the
// round-trip law Load(Save(C)) == C.
func Save(doc configpkg.Document) ([]byte, error) {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, ddserrors.NewConfiguration("encoding document: %v", err)
	}
	return out, nil
}

// Equal reports whether a and b describe the same configuration. A nil
// and an empty slice compare equal; the order of slice elements is
// significant.
func Equal(a, b configpkg.Document) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(d configpkg.Document) configpkg.Document {
	if d.AllowTopics != nil {
		d.AllowTopics = append([]string(nil), d.AllowTopics...)
	}
	if d.BlockTopics != nil {
		d.BlockTopics = append([]string(nil), d.BlockTopics...)
	}
	if d.Participants != nil {
		d.Participants = append([]configpkg.ParticipantSpec(nil), d.Participants...)
	}
	if d.BuiltinTopics != nil {
		d.BuiltinTopics = append([]configpkg.TopicSpec(nil), d.BuiltinTopics...)
	}
	return d
}

// validateVersion rejects a missing version or one below
// minMajorVersion, per spec.md §6.
func validateVersion(version string) error {
	if version == "" {
		return ddserrors.NewConfiguration("missing required \"version\" field")
	}
	major, err := parseMajor(version)
	if err != nil {
		return ddserrors.NewConfiguration("unparseable version %q: %v", version, err)
	}
	if major < minMajorVersion {
		return ddserrors.NewConfiguration("configuration version %q is older than the minimum supported v%d.0", version, minMajorVersion)
	}
	return nil
}

// parseMajor extracts the major component of a "vN.M" version string.
func parseMajor(version string) (int, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(version)), "v")
	major := trimmed
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		major = trimmed[:idx]
	}
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0, fmt.Errorf("expected a leading integer major version, got %q", version)
	}
	return n, nil
}
