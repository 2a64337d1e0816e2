package point

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInfo_PreservesOrder(t *testing.T) {
	in, err := ParseInfo(`{"icaoCode": "EDXY", "name": "Klinikum", "operator": "Civil", "elevation": 412}`)
	require.NoError(t, err)
	var keys []string
	for _, f := range in {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"icaoCode", "name", "operator", "elevation"}, keys)
	assert.Equal(t, "Klinikum", in.Get("name"))
	assert.Equal(t, "412", in.Get("elevation"))
	assert.Equal(t, "", in.Get("missing"))
	assert.True(t, in.Has("operator"))
}

func TestParseInfo_Edge(t *testing.T) {
	type testCase struct {
		description string
		input       string
		expectErr   bool
		expectLen   int
	}
	tests := []testCase{
		{description: "empty string", input: "", expectLen: 0},
		{description: "empty object", input: "{}", expectLen: 0},
		{description: "array", input: "[1,2]", expectErr: true},
		{description: "truncated", input: `{"name": "x"`, expectErr: true},
		{description: "null value", input: `{"name": null}`, expectLen: 1},
	}
	for _, tc := range tests {
		in, err := ParseInfo(tc.input)
		if tc.expectErr {
			assert.Error(t, err, tc.description)
			continue
		}
		require.NoError(t, err, tc.description)
		assert.Len(t, in, tc.expectLen, tc.description)
	}
}

func TestInfo_WithAndEncode(t *testing.T) {
	in := Info{String("name", "Pad \"A\""), Number("elevation", "12.5")}
	out := in.With(String("site", "Hospital"))
	assert.Len(t, in, 2)
	assert.Equal(t, `{"name":"Pad \"A\"","elevation":12.5,"site":"Hospital"}`, out.Encode())

	replaced := out.With(String("name", "B"))
	assert.Equal(t, "B", replaced.Get("name"))
	assert.Len(t, replaced, 3)

	back, err := ParseInfo(out.Encode())
	require.NoError(t, err)
	assert.Equal(t, "Pad \"A\"", back.Get("name"))
	assert.Equal(t, "Hospital", back.Get("site"))
	assert.Equal(t, `{"elevation":""}`, Info{Number("elevation", "")}.Encode())
}

func TestRecord_Valid(t *testing.T) {
	assert.True(t, Record{Lat: 90, Lon: -180}.Valid())
	assert.False(t, Record{Lat: math.NaN(), Lon: 0}.Valid())
	assert.False(t, Record{Lat: 0, Lon: math.Inf(1)}.Valid())
	assert.False(t, Record{Lat: 91, Lon: 0}.Valid())
	assert.False(t, Record{Lat: 0, Lon: 180.5}.Valid())
}
