package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://raidforge.ai/schemas/protocol/"

var messageSchemas = map[string]string{
	TypeHello:   "hello",
	TypeWelcome: "welcome",
	TypeCall:    "call",
	TypeResult:  "result",
	TypeEvent:   "event",
}

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	for _, name := range messageSchemas {
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
	schemas = make(map[string]*jsonschema.Schema, len(messageSchemas))
	for typ, name := range messageSchemas {
		s, err := compiler.Compile(schemaBaseURL + name + ".schema.json")
		if err != nil {
			schemaErr = fmt.Errorf("schema %s: %w", name, err)
			return
		}
		schemas[typ] = s
	}
}

// Validate checks a raw message of the given type against its schema.
func Validate(msgType string, raw []byte) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s, ok := schemas[msgType]
	if !ok {
		return fmt.Errorf("unknown message type %q", msgType)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%s: %w", strings.ToLower(msgType), err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", strings.ToLower(msgType), err)
	}
	return nil
}
