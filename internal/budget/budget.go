// Package budget estimates prompt cost and enforces length caps.
package budget

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// DefaultEncoding is shared by the gpt-4o, gpt-4.1 and gpt-5 families.
const DefaultEncoding = "o200k_base"

// DefaultImageCost is the surcharge per extra image in one message.
const DefaultImageCost = 425

type Counter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	tk *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.tk.Encode(text, nil, nil))
}

// HeuristicCounter assumes four bytes per token.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

var (
	encoders   = map[string]Counter{}
	encodersMu sync.Mutex
)

// NewCounter returns a tiktoken counter for encoding, or the heuristic one if
// the encoding cannot be loaded. Encoders are loaded once per process.
func NewCounter(encoding string) Counter {
	encodersMu.Lock()
	defer encodersMu.Unlock()

	if c, ok := encoders[encoding]; ok {
		return c
	}
	var c Counter
	tk, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		log.Warn().Err(err).Str("encoding", encoding).Msg("token counting falls back to estimation")
		c = HeuristicCounter{}
	} else {
		c = tiktokenCounter{tk: tk}
	}
	encoders[encoding] = c
	return c
}

// ImageSurcharge is the estimated cost of the items in one message beyond
// the first, each charged at perImage.
func ImageSurcharge(items, perImage int) int {
	return perImage * max(0, items-1)
}

// Truncate cuts s to at most limit bytes, ending with "..." when shortened.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return cut(s, max(limit, 0))
	}
	return cut(s, limit-3) + "..."
}

// HeadTail keeps both ends of s when it is more than ten bytes over limit.
func HeadTail(s string, limit int) string {
	if len(s) <= limit+10 {
		return s
	}
	half := limit / 2
	return cut(s, half) + "\n(...)\n" + tail(s, half)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// cut returns the longest prefix of s no longer than n bytes that ends on a rune boundary.
func cut(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func tail(s string, n int) string {
	if n >= len(s) {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
