package pipeline

import "github.com/rs/zerolog"

// Result counts what one run consumed. Each stage writes its own fields.
type Result struct {
	Messages         int
	Images           int
	BackreadTokens   int
	RecallerTokens   int
	SystemTokens     int
	ResponderTokens  int
	AfterToolsTokens int
	MemorizerTokens  int
	Recalled         []string
	Revised          []string
}

func (r Result) MarshalZerologObject(e *zerolog.Event) {
	e.Int("messages", r.Messages).
		Int("images", r.Images).
		Int("tokens_backread", r.BackreadTokens).
		Int("tokens_recaller", r.RecallerTokens).
		Int("tokens_system", r.SystemTokens).
		Int("tokens_responder", r.ResponderTokens).
		Int("tokens_after_tools", r.AfterToolsTokens).
		Int("tokens_memorizer", r.MemorizerTokens).
		Strs("recalled", r.Recalled).
		Strs("revised", r.Revised)
}
