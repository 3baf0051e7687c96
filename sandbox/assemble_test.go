package sandbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTemplate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		tpl, err := NewTemplate(`destination = "{{destination}}"`)
		require.NoError(t, err)
		assert.NotNil(t, tpl)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := NewTemplate("   \n")
		require.Error(t, err)
		assert.Equal(t, OutcomeConfigError, Classify(err))
	})

	t.Run("UnbalancedDelimiters", func(t *testing.T) {
		_, err := NewTemplate(`destination = "{{destination"`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unbalanced")
	})
}

func TestTemplateRender(t *testing.T) {
	tpl, err := NewTemplate(`destination = "{{destination}}"` + "\n" + `dates = "{{dates}}"`)
	require.NoError(t, err)

	t.Run("Substitution", func(t *testing.T) {
		out, err := tpl.Render(map[string]string{"destination": "Paris", "dates": "June 2026"})
		require.NoError(t, err)
		assert.Contains(t, out, `destination = "Paris"`)
		assert.Contains(t, out, `dates = "June 2026"`)
	})

	t.Run("EscapesQuotesAndNewlines", func(t *testing.T) {
		out, err := tpl.Render(map[string]string{
			"destination": `Par"is` + "\nattack",
			"dates":       "current",
		})
		require.NoError(t, err)
		assert.Contains(t, out, `destination = "Par\"is\nattack"`)
		assert.NotContains(t, out, "\"is\nattack")
	})

	t.Run("EscapesBackslash", func(t *testing.T) {
		out, err := tpl.Render(map[string]string{"destination": `a\b`, "dates": "current"})
		require.NoError(t, err)
		assert.Contains(t, out, `destination = "a\\b"`)
	})

	t.Run("RejectsDelimiterSequences", func(t *testing.T) {
		_, err := tpl.Render(map[string]string{"destination": "x{{dates}}", "dates": "current"})
		require.Error(t, err)
		assert.Equal(t, OutcomeConfigError, Classify(err))
		assert.Contains(t, err.Error(), "template delimiters")
	})

	t.Run("UnresolvedPlaceholder", func(t *testing.T) {
		_, err := tpl.Render(map[string]string{"destination": "Paris"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"dates"`)
	})

	t.Run("ExtraParametersIgnored", func(t *testing.T) {
		out, err := tpl.Render(map[string]string{
			"destination": "Paris",
			"dates":       "current",
			"unused":      "whatever",
		})
		require.NoError(t, err)
		assert.NotContains(t, out, "whatever")
	})
}

func TestAssemble(t *testing.T) {
	tpl, err := NewTemplate(`print("{{destination}}")`)
	require.NoError(t, err)
	req := Request{
		SessionKey: "s1",
		Parameters: map[string]string{"destination": "Paris"},
	}

	t.Run("ACAEnvelope", func(t *testing.T) {
		payload, err := Assemble(Descriptor{Type: BackendACA}, tpl, req)
		require.NoError(t, err)

		var envelope map[string]map[string]string
		require.NoError(t, json.Unmarshal(payload.Body, &envelope))
		props := envelope["properties"]
		assert.Equal(t, "inline", props["codeInputType"])
		assert.Equal(t, "synchronous", props["executionType"])
		assert.Equal(t, `print("Paris")`, props["code"])
		assert.Equal(t, jsonContentType, payload.ContentType)
	})

	t.Run("CodeEnvelope", func(t *testing.T) {
		for _, backend := range []BackendType{BackendE2B, BackendDaytona} {
			payload, err := Assemble(Descriptor{Type: backend}, tpl, req)
			require.NoError(t, err)

			var body map[string]string
			require.NoError(t, json.Unmarshal(payload.Body, &body))
			assert.Equal(t, `print("Paris")`, body["code"])
		}
	})

	t.Run("LocalKeepsParams", func(t *testing.T) {
		payload, err := Assemble(Descriptor{Type: BackendLocal}, tpl, req)
		require.NoError(t, err)
		assert.Nil(t, payload.Body)
		assert.Equal(t, "Paris", payload.Params["destination"])
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		_, err := Assemble(Descriptor{Type: "bogus"}, tpl, req)
		require.Error(t, err)
		assert.Equal(t, OutcomeConfigError, Classify(err))
	})

	t.Run("RenderFailurePropagates", func(t *testing.T) {
		_, err := Assemble(Descriptor{Type: BackendACA}, tpl, Request{SessionKey: "s1"})
		require.Error(t, err)
		assert.Equal(t, OutcomeConfigError, Classify(err))
	})
}
