package agentloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLoop(t *testing.T) {
	a := actionSignature("CLICK", []string{"1"})
	b := actionSignature("SDOWN", nil)
	c := actionSignature("TYPE", []string{"2", "x"})

	tests := []struct {
		name   string
		sigs   []string
		window int
		want   bool
	}{
		{"too short", []string{a, a}, 3, false},
		{"single repeat", []string{a, a, a}, 3, true},
		{"pair repeat", []string{a, b, a, b}, 4, true},
		{"triple repeat", []string{a, b, c, a, b, c}, 6, true},
		{"no pattern", []string{a, b, c, b, a, c}, 6, false},
		{"only recent window counts", []string{c, a, a, a}, 3, true},
		{"disabled", []string{a, a, a}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLoop(tt.sigs, tt.window))
		})
	}
}

func TestActionSignature(t *testing.T) {
	assert.Equal(t, actionSignature("click", []string{"1"}), actionSignature(" CLICK ", []string{"1"}))
	assert.NotEqual(t, actionSignature("CLICK", []string{"1"}), actionSignature("CLICK", []string{"2"}))
	assert.NotEqual(t, actionSignature("TYPE", []string{"1 2"}), actionSignature("TYPE", []string{"1", "2"}))
}
