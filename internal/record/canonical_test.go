package record

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	data, err := MarshalCanonical(Record{"b": int64(1), "a": "x", "_version": int64(1000)})
	require.NoError(t, err)
	assert.Equal(t, `{"_version":1000,"a":"x","b":1}`, string(data))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{"s": "<a&b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"s":"<a&b>"}`, string(data))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to a single code point.
	data, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(data))
}

func TestMarshalCanonical_LineSeparators(t *testing.T) {
	data, err := MarshalCanonical("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(data))

	data, err = MarshalCanonical(`a\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028"`, string(data))
}

func TestMarshalCanonical_Values(t *testing.T) {
	data, err := MarshalCanonical([]any{nil, true, false, int64(-4), 1.5, []any{}, map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, `[null,true,false,-4,1.5,[],{}]`, string(data))
}

func TestMarshalCanonical_RejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(math.NaN())
	require.Error(t, err)
	_, err = MarshalCanonical(map[string]any{"x": math.Inf(1)})
	require.Error(t, err)
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+FF61 sorts before U+1F600 by UTF-8 bytes but after it by UTF-16 units.
	data, err := MarshalCanonical(map[string]any{"\U0001F600": int64(1), "\uFF61": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":1,\"\uFF61\":2}", string(data))
}
