package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Lofthus", "lofthus"},
		{"  Marrakech-Safi ", "marrakech safi"},
		{"Tromsø", "tromsø"}, // ø is a base letter, not a combining mark
		{"Zürich", "zurich"},
		{"São Paulo", "sao paulo"},
		{"Lofthus, Vestland,  Norway", "lofthus vestland norway"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Fold(tt.in))
		})
	}
}

func TestHash(t *testing.T) {
	a := Hash(16, "lofthus", "image")
	b := Hash(16, "lofthus", "image")
	c := Hash(16, "lofthus", "poi")

	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, Hash(0, "x"), 64)
}
