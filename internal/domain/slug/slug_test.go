package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Maddur Tiffins (Near Mysore)", want: "maddur-tiffins"},
		{in: "maddur-tiffins", want: "maddur-tiffins"},
		{in: "  Swadh Restaurant  ", want: "swadh-restaurant"},
		{in: "Cafe -- Coffee & Co.", want: "cafe-coffee-co"},
		{in: "A (x) B (y)", want: "a-b"},
		{in: "(Only Qualifier)", want: ""},
		{in: "", want: Default},
		{in: "   ", want: Default},
		{in: "R1", want: "r1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonicalize(tt.in))
		})
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	for _, s := range []string{"Maddur Tiffins (Near Mysore)", "Swadh_Restaurant!!", "x"} {
		once := Canonicalize(s)
		assert.Equal(t, once, Canonicalize(once))
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("Maddur Tiffins (Near Mysore)", "maddur-tiffins"))
	assert.False(t, Equal("maddur-tiffins", "swadh-restaurant"))
}
