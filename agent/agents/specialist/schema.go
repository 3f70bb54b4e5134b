package specialist

import (
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
	"github.com/xeipuuv/gojsonschema"
)

const (
	routerSchemaJSON = `{
  "type": "object",
  "required": ["intent"],
  "properties": {
    "intent": {"type": "string"}
  }
}`

	specialistSchemaJSON = `{
  "type": "object",
  "required": ["reply_text"],
  "properties": {
    "reply_text": {"type": "string", "pattern": "\\S"},
    "extracted_data": {"type": ["object", "null"]}
  }
}`
)

var (
	routerSchema     = mustSchema(routerSchemaJSON)
	specialistSchema = mustSchema(specialistSchemaJSON)
)

func mustSchema(raw string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("compile output schema: %v", err))
	}
	return s
}

// decodeModelJSON strips code fences, validates raw against s and decodes it into out.
func decodeModelJSON(raw string, s *gojsonschema.Schema, out any) error {
	payload := stripCodeFences(raw)
	if payload == "" {
		return fmt.Errorf("%w: empty model output", contractx.ErrSchemaViolation)
	}

	result, err := s.Validate(gojsonschema.NewStringLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: invalid json: %v", contractx.ErrSchemaViolation, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("%w: %s", contractx.ErrSchemaViolation, strings.Join(problems, "; "))
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("%w: decode: %v", contractx.ErrSchemaViolation, err)
	}
	return nil
}

// stripCodeFences removes a surrounding ``` or ```json fence.
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
