package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"50%", "50!%"},
		{"a_b", "a!_b"},
		{"wow!", "wow!!"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeLike(tt.in), tt.in)
	}
}

func TestLikeTextLowercases(t *testing.T) {
	assert.Equal(t, "hello!%", likeText("HeLLo%"))
	assert.Equal(t, "42", likeText(42))
}
