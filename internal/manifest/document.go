// Package manifest manages the persisted project manifest (folio.config.json):
// the schema-valid document holding the project title, stylesheet list, page
// format, plugin list, and content file ordering. All mutations go through
// the serialized Writer; the on-disk file is always a complete document.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kaptinlin/jsonschema"
	"github.com/tidwall/gjson"
)

// Filename is the manifest file name inside a project directory.
const Filename = "folio.config.json"

// Document is the parsed project manifest.
type Document struct {
	Title      string   `json:"title,omitempty"`
	Styles     []string `json:"styles,omitempty"`
	PageFormat string   `json:"pageFormat,omitempty"`
	Plugins    []string `json:"plugins,omitempty"`
	Files      []string `json:"files,omitempty"`
}

const schemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"styles": {"type": "array", "items": {"type": "string"}},
		"pageFormat": {"type": "string", "enum": ["A4", "A5", "B5", "letter", "legal"]},
		"plugins": {"type": "array", "items": {"type": "string"}},
		"files": {"type": "array", "items": {"type": "string"}}
	},
	"additionalProperties": false
}`

var schema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	s, err := compiler.Compile([]byte(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("manifest schema does not compile: %v", err))
	}
	return s
}

// ValidateBytes checks raw manifest JSON against the schema.
func ValidateBytes(data []byte) error {
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("manifest schema validation failed: %v", result.Errors)
}

// Load reads and parses the manifest at path. A missing file yields an empty
// document, not an error.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if err := ValidateBytes(data); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &doc, nil
}

// TitleOf reads the title straight from raw manifest bytes. Used on paths
// that hold raw JSON and do not want a full parse.
func TitleOf(data []byte) string {
	return gjson.GetBytes(data, "title").String()
}

// FilesOf reads the ordered content file list from raw manifest bytes.
func FilesOf(data []byte) []string {
	var files []string
	for _, entry := range gjson.GetBytes(data, "files").Array() {
		files = append(files, entry.String())
	}
	return files
}
