package catalogs

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://raidforge.ai/schemas/content/"

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	for _, name := range contentFiles {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
		if err != nil {
			schemaErr = err
			return
		}
		if err := compiler.AddResource(schemaBaseURL+name+".schema.json", bytes.NewReader(raw)); err != nil {
			schemaErr = fmt.Errorf("schema %s: %w", name, err)
			return
		}
	}
	schemas = make(map[string]*jsonschema.Schema, len(contentFiles))
	for _, name := range contentFiles {
		s, err := compiler.Compile(schemaBaseURL + name + ".schema.json")
		if err != nil {
			schemaErr = fmt.Errorf("schema %s: %w", name, err)
			return
		}
		schemas[name] = s
	}
}

// validateContent checks one raw content file against its schema.
func validateContent(name string, raw []byte) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s, ok := schemas[name]
	if !ok {
		return fmt.Errorf("%s.json: no schema", name)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%s.json: %w", name, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s.json: %w", name, err)
	}
	return nil
}
