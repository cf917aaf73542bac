package images

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"io"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// promptKeys are the text chunk keywords image generators store prompts under.
var promptKeys = []string{"parameters", "Description"}

// PromptReader finds the generation prompt embedded in a generated image.
type PromptReader struct {
	dl Downloader
}

func NewPromptReader(dl Downloader) *PromptReader {
	return &PromptReader{dl: dl}
}

// Prompt returns the positive prompt stored in a PNG attachment, if any.
func (r *PromptReader) Prompt(ctx context.Context, att *discordgo.MessageAttachment) (string, bool) {
	if att == nil || att.ContentType != "image/png" {
		return "", false
	}
	data, err := r.dl.Download(ctx, att.URL)
	if err != nil {
		return "", false
	}
	return PNGPrompt(data)
}

// PNGPrompt extracts the prompt from PNG text chunks. For webui style
// parameters only the text before the negative prompt is kept.
func PNGPrompt(data []byte) (string, bool) {
	text := pngText(data)
	for _, key := range promptKeys {
		v, ok := text[key]
		if !ok {
			continue
		}
		if i := strings.Index(v, "Negative prompt:"); i >= 0 {
			v = v[:i]
		} else if i := strings.Index(v, "\nSteps:"); i >= 0 {
			v = v[:i]
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	return "", false
}

// pngText collects tEXt, zTXt and iTXt chunks up to the first IDAT.
func pngText(data []byte) map[string]string {
	out := map[string]string{}
	if !bytes.HasPrefix(data, pngSignature) {
		return out
	}
	p := data[len(pngSignature):]
	for len(p) >= 12 {
		n := binary.BigEndian.Uint32(p[:4])
		typ := string(p[4:8])
		if uint64(n)+12 > uint64(len(p)) {
			break
		}
		body := p[8 : 8+n]
		p = p[12+n:]

		switch typ {
		case "tEXt":
			if k, v, ok := bytes.Cut(body, []byte{0}); ok {
				out[string(k)] = latin1(v)
			}
		case "zTXt":
			k, rest, ok := bytes.Cut(body, []byte{0})
			if ok && len(rest) > 1 {
				if v, err := inflate(rest[1:]); err == nil {
					out[string(k)] = latin1(v)
				}
			}
		case "iTXt":
			if k, v, ok := parseITXt(body); ok {
				out[k] = v
			}
		case "IDAT", "IEND":
			return out
		}
	}
	return out
}

func parseITXt(body []byte) (string, string, bool) {
	k, rest, ok := bytes.Cut(body, []byte{0})
	if !ok || len(rest) < 2 {
		return "", "", false
	}
	compressed := rest[0] == 1
	rest = rest[2:]
	// language tag, then translated keyword
	for range 2 {
		if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
			return "", "", false
		}
	}
	if compressed {
		v, err := inflate(rest)
		if err != nil {
			return "", "", false
		}
		rest = v
	}
	return string(k), string(rest), true
}

func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, 1<<20))
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
