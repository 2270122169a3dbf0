package contact

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/DukeRupert/fixiepixie/internal/domain"

	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a contact file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the format from the file extension. Anything that is
// not .json is parsed as YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads a contact file and builds a Directory. It is called once at
// process start; a missing file or a missing Default entry is fatal.
func Load(path string, logger *slog.Logger) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contacts file: %w", err)
	}

	dir, err := Parse(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for _, city := range dir.Cities() {
		if len(dir.Resolve(city).UsableEmails()) == 0 {
			logger.Warn("contact entry has no usable addresses", "city", city, "path", path)
		}
	}
	if len(dir.Default().UsableEmails()) == 0 {
		logger.Warn("default contact has no usable addresses", "path", path)
	}

	logger.Info("loaded contact directory", "path", path, "cities", dir.Len())
	return dir, nil
}

// Parse decodes contact data of the given format:
//
//	Dallas:
//	  emails: [publicworks@dallas.example]
//	Default:
//	  emails: [reports@fixiepixie.example]
func Parse(data []byte, format Format) (*Directory, error) {
	entries := make(map[string]domain.ContactRecord)

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown contacts format %q", format)
	}

	return NewDirectory(entries)
}
