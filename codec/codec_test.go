package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string         `json:"name" yaml:"name" cbor:"name"`
	Rate    uint32         `json:"rate" yaml:"rate" cbor:"rate"`
	Elapsed time.Duration  `json:"elapsed" yaml:"elapsed" cbor:"elapsed"`
	Tags    map[string]int `json:"tags" yaml:"tags" cbor:"tags"`
}

func TestRoundTrip(t *testing.T) {
	in := sample{
		Name:    "arena",
		Rate:    16,
		Elapsed: 1234 * time.Millisecond,
		Tags:    map[string]int{"b": 2, "a": 1},
	}

	for _, f := range Formats {
		t.Run(string(f), func(t *testing.T) {
			data, err := Marshal(f, in)
			require.NoError(t, err)

			var out sample
			require.NoError(t, Unmarshal(f, data, &out))

			if diff := cmp.Diff(in, out); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCBORIsDeterministic(t *testing.T) {
	a := map[string]int{"z": 1, "a": 2, "m": 3}
	b := map[string]int{"m": 3, "z": 1, "a": 2}

	first, err := Marshal(CBOR, a)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(CBOR, b)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(first, again), "encoding %d differs", i)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: JSON},
		{in: "json", want: JSON},
		{in: " YAML ", want: YAML},
		{in: "yml", want: YAML},
		{in: "cbor", want: CBOR},
		{in: "toml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnknownFormat(t *testing.T) {
	_, err := Marshal(Format("toml"), sample{})
	assert.Error(t, err)
	assert.Error(t, Unmarshal(Format("toml"), []byte("x"), &sample{}))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".json", JSON.Extension())
	assert.Equal(t, ".yaml", YAML.Extension())
	assert.Equal(t, ".cbor", CBOR.Extension())
}
