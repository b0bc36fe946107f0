package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON schema used to check model output locally.
type Schema struct {
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// CompileSchema compiles a raw JSON schema document.
func CompileSchema(name string, raw json.RawMessage) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return &Schema{raw: raw, compiled: compiled}, nil
}

// MustCompileSchema is CompileSchema for package-level schemas.
func MustCompileSchema(name string, raw string) *Schema {
	s, err := CompileSchema(name, json.RawMessage(raw))
	if err != nil {
		panic(err)
	}
	return s
}

// Raw returns the schema document.
func (s *Schema) Raw() json.RawMessage {
	return s.raw
}

// Validate checks a parsed JSON document against the schema.
func (s *Schema) Validate(parsed json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return fmt.Errorf("failed to decode JSON for validation: %w", err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("output does not match schema: %w", err)
	}
	return nil
}

// ParseJSON parses JSON from model output, with lightweight recovery
// for markdown code fences and surrounding text.
func ParseJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONCandidate(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || !json.Valid([]byte(candidate)) {
			continue
		}
		return json.RawMessage(candidate), nil
	}

	return nil, fmt.Errorf("failed to parse structured JSON")
}

// DecodeStructured parses model output, validates it when a schema is
// given, and decodes it into v. Failures are reported as KindBadOutput.
func DecodeStructured(provider, content string, schema *Schema, v any) error {
	parsed, err := ParseJSON(content)
	if err != nil {
		return &Error{Provider: provider, Kind: KindBadOutput, Err: err}
	}
	if schema != nil {
		if err := schema.Validate(parsed); err != nil {
			return &Error{Provider: provider, Kind: KindBadOutput, Err: err}
		}
	}
	if err := json.Unmarshal(parsed, v); err != nil {
		return &Error{Provider: provider, Kind: KindBadOutput, Err: fmt.Errorf("failed to decode structured output: %w", err)}
	}
	return nil
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop the opening fence, which may carry a language tag.
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractJSONCandidate(content string) string {
	trimmed := strings.TrimSpace(content)
	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return ""
	}
	closeChar := "}"
	if trimmed[start] == '[' {
		closeChar = "]"
	}
	end := strings.LastIndex(trimmed, closeChar)
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}
