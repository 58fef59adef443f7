// Package loader reads policy documents from YAML or JSON files and checks
// them against the policy JSON Schema before they are compiled.
package loader

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"zerotrust/internal/policy/models"
	dErrors "zerotrust/pkg/domain-errors"
)

//go:embed policy.schema.json
var policySchema []byte

// Loader validates documents against the embedded schema.
type Loader struct {
	schema *gojsonschema.Schema
}

func New() (*Loader, error) {
	schema, err := gojsonschema.NewSchemaLoader().Compile(gojsonschema.NewBytesLoader(policySchema))
	if err != nil {
		return nil, fmt.Errorf("compile policy schema: %w", err)
	}
	return &Loader{schema: schema}, nil
}

// Load reads path, which is either a policy file or a directory of them.
// Files are read in lexical order; other extensions are skipped.
func (l *Loader) Load(path string) ([]models.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat policy path: %w", err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		return l.Parse(path, data)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read policy dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && supported(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var docs []models.Document
	for _, name := range names {
		full := filepath.Join(path, name)
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		parsed, err := l.Parse(full, data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, parsed...)
	}
	return docs, nil
}

func supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Parse decodes one file. A file holds a single policy or a list under "policies".
func (l *Loader) Parse(name string, data []byte) ([]models.Document, error) {
	var raw any
	var err error
	if strings.EqualFold(filepath.Ext(name), ".json") {
		err = json.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformedPolicy, fmt.Sprintf("%s: not valid %s", name, format(name)))
	}

	items := []any{raw}
	if m, ok := raw.(map[string]any); ok {
		if list, ok := m["policies"]; ok && len(m) == 1 {
			if items, ok = list.([]any); !ok {
				return nil, dErrors.New(dErrors.CodeMalformedPolicy, name+": policies must be a list")
			}
		}
	}

	docs := make([]models.Document, 0, len(items))
	for i, item := range items {
		doc, err := l.decode(item)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeMalformedPolicy, fmt.Sprintf("%s: policy %d: %v", name, i, err))
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Validate checks a single decoded policy against the schema.
func (l *Loader) Validate(item any) error {
	result, err := l.schema.Validate(gojsonschema.NewGoLoader(item))
	if err != nil {
		return fmt.Errorf("schema loader: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema violations: [%s]", strings.Join(msgs, "; "))
	}
	return nil
}

func (l *Loader) decode(item any) (models.Document, error) {
	if err := l.Validate(item); err != nil {
		return models.Document{}, err
	}
	b, err := json.Marshal(item)
	if err != nil {
		return models.Document{}, err
	}
	var doc models.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return models.Document{}, err
	}
	return doc, nil
}

func format(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return "JSON"
	}
	return "YAML"
}
