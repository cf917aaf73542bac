package pipeline

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fenceLines(chunk string) int {
	n := 0
	for _, line := range strings.SplitAfter(chunk, "\n") {
		if fenceRe.MatchString(line) {
			n++
		}
	}
	return n
}

func TestChunkShortText(t *testing.T) {
	assert.Equal(t, []string{"hello\nworld"}, Chunk("hello\nworld", ChunkLimit))
	assert.Nil(t, Chunk("", ChunkLimit))
}

func TestChunkReopensCodeBlock(t *testing.T) {
	var b strings.Builder
	b.WriteString("Here is the script:\n```python\n")
	for range 100 {
		fmt.Fprintf(&b, "print(%q)\n", strings.Repeat("x", 20))
	}
	b.WriteString("```\nDone.\n")
	text := b.String()
	require.Greater(t, len(text), 3000)

	chunks := Chunk(text, ChunkLimit)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), ChunkLimit)
		assert.Zero(t, fenceLines(c)%2, "unbalanced fences in %q", c[:40])
	}
	assert.True(t, strings.HasSuffix(chunks[0], "\n```\n"))
	assert.True(t, strings.HasPrefix(chunks[1], "```python\n"))

	rejoined := strings.TrimSuffix(chunks[0], "```\n") + strings.TrimPrefix(chunks[1], "```python\n")
	assert.Equal(t, text, rejoined)
}

func TestChunkBareFenceToggles(t *testing.T) {
	var b strings.Builder
	b.WriteString("```\n")
	for range 80 {
		b.WriteString(strings.Repeat("y", 39) + "\n")
	}
	b.WriteString("```\nafter\n")

	chunks := Chunk(b.String(), 1000)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), 1000)
		assert.Zero(t, fenceLines(c)%2, "chunk %d", i)
	}
	assert.True(t, strings.HasPrefix(chunks[1], "```\n"))
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "```\nafter\n"))
}

func TestChunkSplitsLongLines(t *testing.T) {
	text := strings.Repeat("é", 3000)
	chunks := Chunk(text, ChunkLimit)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), ChunkLimit)
		assert.True(t, utf8.ValidString(c))
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunkLongLineInsideCode(t *testing.T) {
	text := "```go\n" + strings.Repeat("a", 4000) + "\n```\n"
	chunks := Chunk(text, ChunkLimit)
	require.Greater(t, len(chunks), 2)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), ChunkLimit)
		assert.Zero(t, fenceLines(c)%2, "chunk %d", i)
		if i > 0 {
			assert.True(t, strings.HasPrefix(c, "```go\n"))
		}
	}
}

func TestChunkFenceOpeningAtLimit(t *testing.T) {
	for _, open := range []string{"```go\n", "```\n"} {
		t.Run(strings.TrimSpace(open), func(t *testing.T) {
			filler := strings.Repeat("f", 99) + "\n"
			var b strings.Builder
			for b.Len()+len(filler) <= ChunkLimit-len(open)-2 {
				b.WriteString(filler)
			}
			b.WriteString(strings.Repeat("g", ChunkLimit-len(open)-b.Len()-1) + "\n")
			require.Equal(t, ChunkLimit-len(open), b.Len())
			b.WriteString(open + "x := 1\n```\n")

			chunks := Chunk(b.String(), ChunkLimit)
			require.Len(t, chunks, 2)
			for i, c := range chunks {
				assert.LessOrEqual(t, len(c), ChunkLimit, "chunk %d", i)
				assert.Zero(t, fenceLines(c)%2, "chunk %d", i)
			}
			assert.True(t, strings.HasPrefix(chunks[1], open))
			assert.Equal(t, b.String(), strings.Join(chunks, ""))
		})
	}
}

func TestChunkKeepsLongLanguageTag(t *testing.T) {
	tag := "typescript_react_component"
	text := "```" + tag + "\n" + strings.Repeat(strings.Repeat("z", 60)+"\n", 60) + "```\n"

	chunks := Chunk(text, ChunkLimit)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), ChunkLimit)
	}
	assert.True(t, strings.HasPrefix(chunks[1], "```"+tag+"\n"))
}
