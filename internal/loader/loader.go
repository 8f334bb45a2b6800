// Package loader turns JSON and YAML sources into schema.Document values.
package loader

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/wizzardx/davinci/pkg/schema"
	"gopkg.in/yaml.v3"
)

// Format is a document source format.
type Format string

const (
	FormatAuto Format = ""
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

const documentSchemaURL = "https://davinci.dev/schemas/document.json"

//go:embed document.schema.json
var documentSchemaJSON string

var documentSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document schema: %w", err)
	}
	if err := c.AddResource(documentSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add document schema resource: %w", err)
	}
	return c.Compile(documentSchemaURL)
})

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatAuto
}

// Decode parses a document. FormatAuto treats input starting with '{' as
// JSON and anything else as YAML.
func Decode(data []byte, format Format) (*schema.Document, error) {
	data, err := toUTF8(data)
	if err != nil {
		return nil, err
	}

	if format == FormatAuto {
		format = FormatYAML
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
			format = FormatJSON
		}
	}

	var tree any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&tree); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeDecode, "invalid JSON document: %s", err.Error()).WithCause(err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeDecode, "invalid YAML document: %s", err.Error()).WithCause(err)
		}
	default:
		return nil, schema.NewErrorf(schema.ErrCodeDecode, "unsupported document format %q", format)
	}
	if tree == nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "empty document")
	}
	return DecodeValue(tree)
}

// DecodeValue validates an already-decoded tree (maps, slices, scalars)
// against the document schema and maps it into a schema.Document.
func DecodeValue(tree any) (*schema.Document, error) {
	// Round-trip through JSON so YAML scalars and caller-built maps reach
	// the validator in the json.Number form it expects.
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDecode, "document is not JSON-compatible: %s", err.Error()).WithCause(err)
	}
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "re-read document").WithCause(err)
	}

	s, err := documentSchema()
	if err != nil {
		return nil, fmt.Errorf("document schema: %w", err)
	}
	if err := s.Validate(value); err != nil {
		return nil, toDavinciError(err)
	}

	var doc schema.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDecode, "map document: %s", err.Error()).WithCause(err)
	}
	return &doc, nil
}

// LoadFile reads and decodes one document file.
func LoadFile(path string) (*schema.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "read %s: %s", path, err.Error()).WithCause(err)
	}
	doc, err := Decode(data, FormatFromPath(path))
	if err != nil {
		var de *schema.DavinciError
		if errors.As(err, &de) {
			if de.Details == nil {
				de.Details = map[string]any{}
			}
			de.Details["file"] = path
		}
		return nil, err
	}
	return doc, nil
}

// LoadFiles decodes every file and merges them in order. Components and
// properties are concatenated; duplicate component ids are left for
// graph.Parse to report. An alias defined differently in two files is an
// error.
func LoadFiles(paths []string) (*schema.Document, error) {
	if len(paths) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "no document files")
	}
	merged := &schema.Document{}
	origin := make(map[string]string)
	for _, p := range paths {
		doc, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		if merged.Version == "" {
			merged.Version = doc.Version
		}
		for name, def := range doc.Types {
			if merged.Types == nil {
				merged.Types = make(map[string]string)
			}
			if prev, ok := merged.Types[name]; ok && prev != def {
				return nil, schema.NewErrorf(schema.ErrCodeDuplicateIdentifier,
					"type alias %q defined as %q in %s and %q in %s", name, prev, origin[name], def, p)
			}
			merged.Types[name] = def
			origin[name] = p
		}
		merged.Components = append(merged.Components, doc.Components...)
		merged.Properties = append(merged.Properties, doc.Properties...)
	}
	return merged, nil
}

// toDavinciError flattens a jsonschema.ValidationError into one error that
// lists every leaf violation.
func toDavinciError(err error) *schema.DavinciError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "document failed validation with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
