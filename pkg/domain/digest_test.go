package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ComputeDigest_IsDeterministic(t *testing.T) {
	a := ComputeDigest([]byte("bundle"))
	b := ComputeDigest([]byte("bundle"))
	c := ComputeDigest([]byte("bundle!"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a.String(), DigestHexLen)
	assert.False(t, a.IsZero())
}

func Test_ParseDigest(t *testing.T) {
	full := ComputeDigest([]byte("bundle")).String()

	tests := map[string]struct {
		in      string
		want    string
		wantErr bool
	}{
		"full width":      {in: full, want: full},
		"0x prefix":       {in: "0x" + full, want: full},
		"uppercase":       {in: strings.ToUpper(full), want: full},
		"short is padded": {in: "abcd", want: strings.Repeat("0", 60) + "abcd"},
		"whitespace":      {in: "  " + full + "\n", want: full},
		"empty":           {in: "", wantErr: true},
		"too wide":        {in: strings.Repeat("a", 65), wantErr: true},
		"not hexadecimal": {in: "zz12", wantErr: true},
		"0x alone":        {in: "0x", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseDigest(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func Test_ParseDigest_RoundTrip(t *testing.T) {
	original := ComputeDigest([]byte("roundtrip"))
	parsed, err := ParseDigest(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}
