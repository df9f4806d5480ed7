package llm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaGenerator generates JSON Schema from Go types
type SchemaGenerator struct{}

// NewSchemaGenerator creates a new SchemaGenerator
func NewSchemaGenerator() *SchemaGenerator {
	return &SchemaGenerator{}
}

// Generate generates a JSON Schema from the given value.
// The value can be a struct, map, or any other Go type.
func (g *SchemaGenerator) Generate(v interface{}) (map[string]interface{}, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot generate schema from nil")
	}

	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return g.generateFromType(t)
}

func (g *SchemaGenerator) generateFromType(t reflect.Type) (map[string]interface{}, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	schema := make(map[string]interface{})

	switch t.Kind() {
	case reflect.Struct:
		return g.generateStructSchema(t)
	case reflect.Map:
		schema["type"] = "object"
		if t.Key().Kind() == reflect.String {
			valueSchema, err := g.generateFromType(t.Elem())
			if err != nil {
				return nil, err
			}
			schema["additionalProperties"] = valueSchema
		}
	case reflect.Slice, reflect.Array:
		schema["type"] = "array"
		itemSchema, err := g.generateFromType(t.Elem())
		if err != nil {
			return nil, err
		}
		schema["items"] = itemSchema
	case reflect.String:
		schema["type"] = "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		schema["type"] = "integer"
	case reflect.Float32, reflect.Float64:
		schema["type"] = "number"
	case reflect.Bool:
		schema["type"] = "boolean"
	case reflect.Interface:
		// any
	default:
		schema["type"] = "string"
	}

	return schema, nil
}

// generateStructSchema builds an object schema. Fields without omitempty are
// required; an `enum:"a,b"` tag restricts string values.
func (g *SchemaGenerator) generateStructSchema(t reflect.Type) (map[string]interface{}, error) {
	schema := map[string]interface{}{
		"type": "object",
	}

	properties := make(map[string]interface{})
	required := make([]string, 0)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		isRequired := true

		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				fieldName = parts[0]
			}
			for _, part := range parts[1:] {
				if part == "omitempty" {
					isRequired = false
					break
				}
			}
		}

		fieldSchema, err := g.generateFromType(field.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema for field %s: %w", field.Name, err)
		}

		if desc := field.Tag.Get("description"); desc != "" {
			fieldSchema["description"] = desc
		}
		if enum := field.Tag.Get("enum"); enum != "" {
			fieldSchema["enum"] = strings.Split(enum, ",")
		}

		properties[fieldName] = fieldSchema
		if isRequired {
			required = append(required, fieldName)
		}
	}

	schema["properties"] = properties
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema, nil
}

// ToJSONString converts a schema to an indented JSON string
func (g *SchemaGenerator) ToJSONString(schema map[string]interface{}) (string, error) {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// BuildSchemaPrompt appends JSON output instructions for schema to a prompt
func BuildSchemaPrompt(schema map[string]interface{}, strict bool) string {
	var sb strings.Builder
	sb.WriteString("\n\n## Output Format\n")
	sb.WriteString("Respond with a JSON object matching this JSON Schema:\n")

	if text, err := NewSchemaGenerator().ToJSONString(schema); err == nil {
		sb.WriteString("```json\n")
		sb.WriteString(text)
		sb.WriteString("\n```\n")
	}

	if strict {
		sb.WriteString("\nRespond with JSON only. Do not include any text, explanation or code fences before or after the JSON object.\n")
	} else {
		sb.WriteString("\nMake sure the response contains valid JSON that follows this schema.\n")
	}
	return sb.String()
}

// ValidateJSON checks document against schema and returns every violation in one error
func ValidateJSON(schema map[string]interface{}, document string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewStringLoader(document),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidResponse, strings.Join(msgs, "; "))
}

// CleanJSONBlock removes markdown code block wrappers from JSON
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// ExtractJSON extracts the outermost JSON object (or array) from content
func ExtractJSON(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		start = strings.Index(content, "[")
		end = strings.LastIndex(content, "]")
		if start == -1 || end == -1 || end <= start {
			return "", fmt.Errorf("%w: no JSON found in content", ErrInvalidResponse)
		}
	}

	return content[start : end+1], nil
}
