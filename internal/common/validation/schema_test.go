package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keywordSchema = `{
  "type": "object",
  "required": ["name_keywords", "description_keywords"],
  "properties": {
    "name_keywords": {"type": "array", "items": {"type": "string"}},
    "description_keywords": {"type": "array", "items": {"type": "string"}}
  }
}`

func TestSchema_Validate(t *testing.T) {
	s, err := Compile(keywordSchema)
	require.NoError(t, err)

	ok := s.Validate(map[string]interface{}{
		"name_keywords":        []interface{}{"ibuprofen"},
		"description_keywords": []interface{}{"pain", "fever"},
	})
	assert.True(t, ok.Valid)
	assert.Empty(t, ok.Errors)

	bad := s.Validate(map[string]interface{}{
		"name_keywords": "ibuprofen",
	})
	assert.False(t, bad.Valid)
	assert.NotEmpty(t, bad.GetErrorMessages())
	assert.True(t, bad.HasErrors("name_keywords"))
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.Error(t, err)
}

func TestValidateAgainst_CachesSchema(t *testing.T) {
	doc := map[string]interface{}{"name_keywords": []interface{}{}, "description_keywords": []interface{}{}}
	assert.True(t, ValidateAgainst(doc, keywordSchema).Valid)
	assert.True(t, ValidateAgainst(doc, keywordSchema).Valid)

	cacheMu.Lock()
	_, cached := cache[keywordSchema]
	cacheMu.Unlock()
	assert.True(t, cached)
}

func TestValidateAgainst_BrokenSchema(t *testing.T) {
	res := ValidateAgainst(map[string]interface{}{}, `not a schema`)
	assert.False(t, res.Valid)
	assert.Equal(t, "INVALID_SCHEMA", res.Errors[0].Code)
}
