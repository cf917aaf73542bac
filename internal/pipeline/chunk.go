package pipeline

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ChunkLimit keeps chunks under the 2000 character message cap with room
// for the fence bookkeeping.
const ChunkLimit = 1950

const (
	fence      = "```"
	closeFence = fence + "\n"
	// lineSlack bounds a closing fence and a reopened fence without its
	// language tag.
	lineSlack = 64
)

var fenceRe = regexp.MustCompile("^```(\\w*)\\s*$")

// Chunk splits text into messages of at most limit bytes. Lines are kept
// whole when possible. A chunk that ends inside a code block is closed with
// a fence and the next one reopens it with the same language tag.
func Chunk(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 2*lineSlack {
		limit = 2*lineSlack + 1
	}
	// Language tags are kept whole unless they would not fit a chunk.
	maxTag := min(longestFenceTag(text), limit/2-lineSlack)

	var (
		chunks []string
		cur    strings.Builder
		prefix string
		inCode bool
		lang   string
	)
	flush := func() {
		if inCode {
			if !strings.HasSuffix(cur.String(), "\n") {
				cur.WriteByte('\n')
			}
			cur.WriteString(closeFence)
		}
		chunks = append(chunks, cur.String())
		cur.Reset()
		prefix = ""
		if inCode {
			prefix = fence + lang + "\n"
			cur.WriteString(prefix)
		}
	}

	for _, line := range splitLines(text, limit-lineSlack-maxTag) {
		m := fenceRe.FindStringSubmatch(line)
		reserve := 0
		if opensOrStaysInCode(inCode, m) {
			reserve = len(closeFence) + 1
		}
		if cur.Len()+len(line)+reserve > limit && cur.Len() > len(prefix) {
			flush()
		}
		cur.WriteString(line)

		if m != nil {
			switch {
			case m[1] != "":
				inCode = true
				lang = m[1]
				if len(lang) > maxTag {
					lang = lang[:maxTag]
				}
			case inCode:
				inCode, lang = false, ""
			default:
				inCode = true
			}
		}
	}
	if cur.Len() > len(prefix) {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// opensOrStaysInCode reports whether the chunk is inside a code block after
// the line matched by m, which is nil for lines that are not fences.
func opensOrStaysInCode(inCode bool, m []string) bool {
	switch {
	case m == nil:
		return inCode
	case m[1] != "":
		return true
	default:
		return !inCode
	}
}

func longestFenceTag(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if m := fenceRe.FindStringSubmatch(line); m != nil {
			n = max(n, len(m[1]))
		}
	}
	return n
}

// splitLines returns the lines of text with their line endings, cutting
// lines longer than max on rune boundaries.
func splitLines(text string, max int) []string {
	var out []string
	for text != "" {
		end := strings.IndexByte(text, '\n') + 1
		if end == 0 {
			end = len(text)
		}
		line := text[:end]
		text = text[end:]
		for len(line) > max {
			cut := max
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			out = append(out, line[:cut])
			line = line[cut:]
		}
		out = append(out, line)
	}
	return out
}
