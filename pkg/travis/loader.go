package travis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a configuration from the given file path.
//
// The file format is determined by extension: .yaml/.yml for YAML, .json for
// JSON. If the extension is unrecognized, YAML is attempted first, then JSON.
//
// After loading, the document is validated against the JSON schema and
// defaults are applied.
//
// Returns an error if:
//   - The file cannot be read (not found, permission denied, etc.)
//   - The content is not valid YAML or JSON
//   - The document fails schema validation
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading config: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a configuration from raw bytes.
//
// The path parameter is used for error messages and format detection. If
// path is empty, format detection falls back to trying YAML first.
//
// Validation runs on the raw data (converted to JSON) before decoding into
// the typed struct, so type errors carry schema pointers instead of decode
// noise.
func LoadFromBytes(data []byte, path string) (*Config, error) {
	if len(data) == 0 {
		return nil, errors.New("config file is empty")
	}

	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}

	if err := ValidateRaw(jsonData); err != nil {
		return nil, err
	}

	cfg, err := parseConfig(data, path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	return cfg, nil
}

// LoadFromReader reads and validates a configuration from an io.Reader.
//
// The path parameter is used for error messages and format detection. If
// path is empty, format detection falls back to trying YAML first.
func LoadFromReader(r io.Reader, path string) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return LoadFromBytes(data, path)
}

// parseConfig decodes the document based on file extension.
func parseConfig(data []byte, path string) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		return parseJSON(data)
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		// Unknown extension: try YAML first (more permissive), then JSON.
		cfg, yamlErr := parseYAML(data)
		if yamlErr == nil {
			return cfg, nil
		}
		cfg, jsonErr := parseJSON(data)
		if jsonErr == nil {
			return cfg, nil
		}
		// Both failed. Return the YAML error, the preferred format.
		return nil, fmt.Errorf("failed to parse config (tried YAML and JSON): %w", yamlErr)
	}
}

func parseJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON in config: %w", err)
	}
	return &cfg, nil
}

func parseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config: %w", err)
	}
	return &cfg, nil
}

// toJSON converts the input data to JSON for schema validation. YAML is
// converted; JSON passes through after a syntax check.
func toJSON(data []byte, path string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON in config: %w", err)
		}
		return data, nil

	case ".yaml", ".yml":
		return yamlToJSON(data)

	default:
		// YAML is a superset of JSON, so try it first.
		jsonData, err := yamlToJSON(data)
		if err == nil {
			return jsonData, nil
		}
		var raw any
		if jsonErr := json.Unmarshal(data, &raw); jsonErr == nil {
			return data, nil
		}
		return nil, fmt.Errorf("failed to parse config (tried YAML and JSON): %w", err)
	}
}

// yamlToJSON converts YAML data to JSON.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML in config: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert config to JSON: %w", err)
	}

	return jsonData, nil
}
