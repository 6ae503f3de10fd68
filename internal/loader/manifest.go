package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/metagraph-dev/metagraph/pkg/schema"
)

// Manifest is the entity registry file: the entity types and the aspects
// each one carries.
//
//	entities:
//	  - name: mlModelGroup
//	    category: core
//	    keyAspect: mlModelGroupKey
//	    aspects:
//	      - ownership
//	      - domains
type Manifest struct {
	Entities []schema.EntityDefinition `yaml:"entities" toml:"entities" json:"entities"`
}

// ReadManifest reads a manifest in YAML, TOML or JSON, chosen by file extension
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity registry: %w", err)
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("failed to parse entity registry %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &m)
		if err != nil {
			return nil, fmt.Errorf("failed to parse entity registry %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("entity registry %s: unknown keys %v", path, undecoded)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("failed to parse entity registry %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported entity registry format: %s", path)
	}
	return &m, nil
}

// WriteManifest saves a manifest, choosing the format by file extension
func WriteManifest(path string, m *Manifest) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		data, err = yaml.Marshal(m)
	case ".toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(m)
		data = buf.Bytes()
	case ".json":
		data, err = json.MarshalIndent(m, "", "  ")
	default:
		return fmt.Errorf("unsupported entity registry format: %s", path)
	}
	if err != nil {
		return fmt.Errorf("failed to encode entity registry: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
