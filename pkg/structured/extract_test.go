package structured

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{
			name: "bare object",
			text: `{"a": 1}`,
			want: `{"a": 1}`,
			ok:   true,
		},
		{
			name: "leading and trailing prose",
			text: `Sure, here is the result: {"a": 1} Hope that helps!`,
			want: `{"a": 1}`,
			ok:   true,
		},
		{
			name: "json code fence",
			text: "Here you go:\n```json\n{\"a\": 1}\n```\nDone.",
			want: `{"a": 1}`,
			ok:   true,
		},
		{
			name: "plain code fence",
			text: "```\n{\"b\": [1, 2]}\n```",
			want: `{"b": [1, 2]}`,
			ok:   true,
		},
		{
			name: "nested objects",
			text: `{"a": {"b": {"c": 1}}, "d": 2} trailing`,
			want: `{"a": {"b": {"c": 1}}, "d": 2}`,
			ok:   true,
		},
		{
			name: "braces inside string literals",
			text: `{"summary": "use {} and \"}\" carefully", "n": 1}`,
			want: `{"summary": "use {} and \"}\" carefully", "n": 1}`,
			ok:   true,
		},
		{
			name: "no object",
			text: "I think we should add dark mode.",
			ok:   false,
		},
		{
			name: "unbalanced object",
			text: `{"a": {"b": 1}`,
			ok:   false,
		},
		{
			name: "empty input",
			text: "",
			ok:   false,
		},
		{
			name: "fence without object falls back to raw scan",
			text: "```\nnothing here\n```\nbut later {\"a\": 1}",
			want: `{"a": 1}`,
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
				assert.True(t, json.Valid([]byte(got)))
			}
		})
	}
}

func TestParserValidStageOutputs(t *testing.T) {
	p, err := NewParser()
	require.NoError(t, err)

	t.Run("pm", func(t *testing.T) {
		raw := p.Parse(`{"summary":"s","acceptance_criteria":["a"],"plan":["p"],"assumptions":[]}`, SchemaPM)
		assert.NotNil(t, raw)
	})
	t.Run("dev", func(t *testing.T) {
		raw := p.Parse(`{"files":[{"path":"main.go","content":"package main","language":"go"}],"notes":[]}`, SchemaDev)
		assert.NotNil(t, raw)
	})
	t.Run("qa", func(t *testing.T) {
		raw := p.Parse(`{"verdict":"pass","findings":[],"suggested_changes":[]}`, SchemaQA)
		assert.NotNil(t, raw)
	})
	t.Run("extra fields tolerated", func(t *testing.T) {
		raw := p.Parse(`{"verdict":"fail","findings":["f"],"suggested_changes":[],"confidence":0.9}`, SchemaQA)
		assert.NotNil(t, raw)
	})
}

func TestParserRejections(t *testing.T) {
	p, err := NewParser()
	require.NoError(t, err)

	t.Run("prose only", func(t *testing.T) {
		assert.Nil(t, p.Parse("I think we should add dark mode.", SchemaPM))
	})
	t.Run("missing required field", func(t *testing.T) {
		assert.Nil(t, p.Parse(`{"summary":"s","plan":["p"],"assumptions":[]}`, SchemaPM))
	})
	t.Run("empty acceptance criteria", func(t *testing.T) {
		assert.Nil(t, p.Parse(`{"summary":"s","acceptance_criteria":[],"plan":["p"],"assumptions":[]}`, SchemaPM))
	})
	t.Run("verdict outside enum", func(t *testing.T) {
		assert.Nil(t, p.Parse(`{"verdict":"maybe","findings":[],"suggested_changes":[]}`, SchemaQA))
	})
	t.Run("wrong type", func(t *testing.T) {
		assert.Nil(t, p.Parse(`{"summary":42,"acceptance_criteria":["a"],"plan":["p"],"assumptions":[]}`, SchemaPM))
	})
	t.Run("unknown schema", func(t *testing.T) {
		assert.Nil(t, p.Parse(`{"a":1}`, "nope"))
	})
}
