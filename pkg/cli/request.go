package cli

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

// LoadRequest decodes a YAML or JSON file into v. A path of "-" reads
// stdin.
func LoadRequest(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("cli: read %s: %w", path, err)
	}
	return ParseRequest(data, path, v)
}

// ParseRequest decodes data by the extension of filename. Without a known
// extension YAML is tried, then JSON.
func ParseRequest(data []byte, filename string, v any) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("cli: parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("cli: parse json: %w", err)
		}
	default:
		yerr := yaml.Unmarshal(data, v)
		if yerr == nil {
			return nil
		}
		if jerr := json.Unmarshal(data, v); jerr != nil {
			return fmt.Errorf("cli: parse %s: %w", filename, errors.Join(yerr, jerr))
		}
	}
	return nil
}
