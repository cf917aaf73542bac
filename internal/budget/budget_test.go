package budget

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestImageSurcharge(t *testing.T) {
	tests := []struct {
		items, want int
	}{
		{0, 0},
		{1, 0},
		{2, 425},
		{4, 3 * 425},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ImageSurcharge(tt.items, DefaultImageCost))
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Len(t, Truncate(strings.Repeat("x", 500), 300), 300)

	got := Truncate(strings.Repeat("é", 20), 10)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 10)
}

func TestHeadTail(t *testing.T) {
	assert.Equal(t, "abc", HeadTail("abc", 100))

	// within the ten byte grace
	s := strings.Repeat("a", 105)
	assert.Equal(t, s, HeadTail(s, 100))

	long := strings.Repeat("a", 100) + strings.Repeat("b", 100)
	got := HeadTail(long, 20)
	assert.Equal(t, strings.Repeat("a", 10)+"\n(...)\n"+strings.Repeat("b", 10), got)
}

func TestHeuristicCounter(t *testing.T) {
	var c HeuristicCounter
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("abc"))
	assert.Equal(t, 2, c.Count("abcde"))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 100, Clamp(5, 100, 10000))
	assert.Equal(t, 10000, Clamp(50000, 100, 10000))
	assert.Equal(t, 500, Clamp(500, 100, 10000))
}
