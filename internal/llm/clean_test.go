package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSONPlain(t *testing.T) {
	out, ok := CleanJSON(`{"a": 1}`)
	require.True(t, ok)
	assert.JSONEq(t, `{"a": 1}`, out)
}

func TestCleanJSONFenced(t *testing.T) {
	raw := "Here is the analysis:\n```json\n{\"score\": 85, \"action\": \"hold\"}\n```\nLet me know."
	out, ok := CleanJSON(raw)
	require.True(t, ok)
	assert.JSONEq(t, `{"score": 85, "action": "hold"}`, out)
}

func TestCleanJSONProseAroundObject(t *testing.T) {
	raw := `Sure. {"verdict": "confirm", "note": "thesis intact"} Hope that helps!`
	out, ok := CleanJSON(raw)
	require.True(t, ok)
	assert.JSONEq(t, `{"verdict": "confirm", "note": "thesis intact"}`, out)
}

func TestCleanJSONTruncated(t *testing.T) {
	raw := `{"picks": [{"ticker": "GLD", "confidence": 0.8}, {"ticker": "TLT"`
	out, ok := CleanJSON(raw)
	require.True(t, ok)

	var parsed struct {
		Picks []struct {
			Ticker string `json:"ticker"`
		} `json:"picks"`
	}
	require.True(t, ParseInto(out, &parsed))
	require.Len(t, parsed.Picks, 2)
	assert.Equal(t, "TLT", parsed.Picks[1].Ticker)
}

func TestCleanJSONTruncatedMidString(t *testing.T) {
	raw := `{"reasoning": "credit stress is sprea`
	out, ok := CleanJSON(raw)
	require.True(t, ok)
	var parsed map[string]string
	require.True(t, ParseInto(out, &parsed))
	assert.Contains(t, parsed["reasoning"], "credit stress")
}

func TestCleanJSONTrailingComma(t *testing.T) {
	raw := `{"a": 1, "b": 2,`
	out, ok := CleanJSON(raw)
	require.True(t, ok)
	assert.JSONEq(t, `{"a": 1, "b": 2}`, out)
}

func TestCleanJSONNoObject(t *testing.T) {
	_, ok := CleanJSON("I could not produce structured output, sorry.")
	assert.False(t, ok)

	_, ok = CleanJSON("")
	assert.False(t, ok)
}

func TestParseIntoMismatch(t *testing.T) {
	var out struct {
		N int `json:"n"`
	}
	assert.False(t, ParseInto(`{"n": "not a number"}`, &out))
}
