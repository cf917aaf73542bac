package tools

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

const wolframEndpoint = "http://api.wolframalpha.com/v2/query"

const (
	wolframFailed     = "An error occured while asking Wolfram Alpha."
	wolframNoAnswer   = "Wolfram Alpha is unable to answer the question. Try to answer with your own knowledge."
	wolframMaxAnswers = 3
)

var fahrenheitRe = regexp.MustCompile(`(-?\d+)\s?°[fF]`)

// Wolfram asks the Wolfram Alpha full results API.
type Wolfram struct {
	creds    Credentials
	f        *fetcher
	endpoint string
}

func NewWolfram(creds Credentials, f *fetcher) *Wolfram {
	return &Wolfram{creds: creds, f: f, endpoint: wolframEndpoint}
}

func (w *Wolfram) Descriptor() Descriptor {
	return Descriptor{
		Name:        "ask_wolframalpha",
		Description: "Asks Wolfram Alpha about math, exchange rates, or the weather. Do not use for price checks or other searches.",
		Parameters:  schema([]string{"query"}, [2]string{"query", "A math operation, currency conversion, or weather question"}),
		Credentials: []CredentialRef{{Service: "wolframalpha", Key: "appid"}},
	}
}

func (w *Wolfram) Run(ctx context.Context, args map[string]any) (string, error) {
	query, err := requireArg(args, "query")
	if err != nil {
		return "", err
	}
	logger := log.With().Str("component", "tools").Str("tool", "ask_wolframalpha").Logger()

	appid, err := w.creds.Credential("wolframalpha", "appid")
	if err != nil || appid == "" {
		logger.Error().Msg("wolframalpha appid not set")
		return wolframFailed, nil
	}
	q := url.Values{"input": {query}, "appid": {appid}}
	resp, err := w.f.do(ctx, request{
		method:  http.MethodGet,
		url:     w.endpoint + "?" + q.Encode(),
		headers: map[string]string{"User-Agent": "Red-cog/2.0.0"},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("wolfram request failed")
		return wolframFailed, nil
	}
	texts, err := plaintexts(resp.body)
	if err != nil {
		logger.Warn().Err(err).Msg("decode wolfram response")
		return wolframFailed, nil
	}
	if len(texts) == 0 {
		return wolframNoAnswer, nil
	}
	if len(texts) > wolframMaxAnswers {
		texts = texts[:wolframMaxAnswers]
	}
	content := withCelsius(strings.Join(texts, "\n"))
	return fmt.Sprintf("[Wolfram Alpha] [Question: %s] [Answer:] %s", query, content), nil
}

// plaintexts collects every non-empty <plaintext> element in document order.
func plaintexts(doc []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	var (
		out    []string
		inText bool
		cur    strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "plaintext" {
				inText = true
				cur.Reset()
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "plaintext" {
				inText = false
				if cur.Len() > 0 {
					out = append(out, capitalize(cur.String()))
				}
			}
		}
	}
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// withCelsius rewrites Fahrenheit readings as "{c}°C/{f}°F".
func withCelsius(s string) string {
	return fahrenheitRe.ReplaceAllStringFunc(s, func(m string) string {
		f, err := strconv.ParseFloat(fahrenheitRe.FindStringSubmatch(m)[1], 64)
		if err != nil {
			return m
		}
		c := (f - 32) * 5 / 9
		return fmt.Sprintf("%d°C/%d°F", int(math.Round(c)), int(math.Round(f)))
	})
}
