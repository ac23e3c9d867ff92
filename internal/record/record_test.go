package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_PreservesLargeIntegers(t *testing.T) {
	rec, err := Decode([]byte(`{"bodyid": 9007199254740993, "score": 0.5, "n": 2.0}`))
	require.NoError(t, err)

	assert.Equal(t, int64(9007199254740993), rec["bodyid"])
	assert.Equal(t, 0.5, rec["score"])
	assert.Equal(t, 2.0, rec["n"], "numbers written with a fraction stay float64")
}

func TestDecode_NestedValues(t *testing.T) {
	rec, err := Decode([]byte(`{"tags": ["a", 1, null], "pos": {"x": 3}}`))
	require.NoError(t, err)

	assert.Equal(t, []any{"a", int64(1), nil}, rec["tags"])
	assert.Equal(t, map[string]any{"x": int64(3)}, rec["pos"])
}

func TestDecode_RejectsNonObject(t *testing.T) {
	_, err := Decode([]byte(`[1,2]`))
	require.Error(t, err)

	_, err = Decode([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
}

func TestDecodeMany(t *testing.T) {
	recs, isList, err := DecodeMany([]byte(`{"bodyid": 1}`))
	require.NoError(t, err)
	assert.False(t, isList)
	assert.Len(t, recs, 1)

	recs, isList, err = DecodeMany([]byte(`[{"bodyid": 1}, {"bodyid": 2}]`))
	require.NoError(t, err)
	assert.True(t, isList)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), recs[1]["bodyid"])

	_, _, err = DecodeMany([]byte(`[{"bodyid": 1}, 3]`))
	require.Error(t, err)
}

func TestNormalize_GoValues(t *testing.T) {
	v, err := Normalize(map[string]any{
		"a": 1,
		"b": []string{"x"},
		"c": uint32(7),
		"d": float32(1.5),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": int64(1),
		"b": []any{"x"},
		"c": int64(7),
		"d": 1.5,
	}, v)

	_, err = Normalize(struct{}{})
	require.Error(t, err)
}

func TestClone_IsDeep(t *testing.T) {
	orig := Record{"tags": []any{"a"}, "pos": map[string]any{"x": int64(1)}}
	cp := orig.Clone()
	cp["tags"].([]any)[0] = "b"
	cp["pos"].(map[string]any)["x"] = int64(2)

	assert.Equal(t, "a", orig["tags"].([]any)[0])
	assert.Equal(t, int64(1), orig["pos"].(map[string]any)["x"])
}

func TestReservedFields(t *testing.T) {
	rec := Record{"bodyid": int64(1), "_version": int64(3), "_zz": true, "status": "x"}
	assert.Equal(t, []string{"_version", "_zz"}, rec.ReservedFields())
	assert.Equal(t, Record{"bodyid": int64(1), "status": "x"}, rec.UserFields())
	assert.True(t, IsReserved("_head"))
	assert.False(t, IsReserved("head"))
}

func TestChainAccessors(t *testing.T) {
	rec := Record{FieldHead: true, FieldVersion: int64(2000)}
	rec.SetChain([]int64{1000, 5}, []string{"k1", "k2"})

	versions, err := rec.ArchivedVersions()
	require.NoError(t, err)
	keys, err := rec.ArchivedKeys()
	require.NoError(t, err)

	assert.Equal(t, []int64{1000, 5}, versions)
	assert.Equal(t, []string{"k1", "k2"}, keys)
	assert.True(t, rec.IsHead())
	assert.Equal(t, int64(2000), rec.Version())

	pub := rec.Public()
	assert.NotContains(t, pub, FieldArchivedKeys)
	assert.NotContains(t, pub, FieldArchivedVersions)
	assert.NotContains(t, pub, FieldHead)
	assert.Contains(t, pub, FieldVersion)
}

func TestChainAccessors_SurviveJSONRoundTrip(t *testing.T) {
	rec := Record{FieldHead: true}
	rec.SetChain([]int64{3, 2}, []string{"b", "a"})

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	var back Record
	require.NoError(t, json.Unmarshal(data, &back))

	versions, err := back.ArchivedVersions()
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, versions)
}

func TestChainAccessors_EmptyAndMalformed(t *testing.T) {
	versions, err := Record{}.ArchivedVersions()
	require.NoError(t, err)
	assert.Empty(t, versions)

	_, err = Record{FieldArchivedVersions: []any{"x"}}.ArchivedVersions()
	require.Error(t, err)
	_, err = Record{FieldArchivedKeys: "nope"}.ArchivedKeys()
	require.Error(t, err)
}

func TestToInt64(t *testing.T) {
	n, ok := ToInt64(3.0)
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	_, ok = ToInt64(3.5)
	assert.False(t, ok)
	_, ok = ToInt64("3")
	assert.False(t, ok)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty([]any{}))
	assert.True(t, IsEmpty(map[string]any{}))
	assert.False(t, IsEmpty(false))
	assert.False(t, IsEmpty(int64(0)))
	assert.False(t, IsEmpty("x"))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(int64(3), 3.0))
	assert.True(t, Equal(3, int64(3)))
	assert.False(t, Equal(int64(3), "3"))
	assert.True(t, Equal([]any{"a", int64(1)}, []any{"a", 1.0}))
	assert.False(t, Equal([]any{"a"}, []any{"a", "b"}))
	assert.True(t, Equal(map[string]any{"x": int64(1)}, Record{"x": 1.0}))
	assert.False(t, Equal(map[string]any{"x": int64(1)}, map[string]any{"y": int64(1)}))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, false))
}
