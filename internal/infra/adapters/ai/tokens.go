package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"
)

// TokenBudget bounds prompt size with the model's tokenizer. When the encoding cannot be
// loaded it falls back to a four-bytes-per-token estimate.
type TokenBudget struct {
	max   int
	model string
	log   *zerolog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTokenBudget(model string, maxTokens int, logger *zerolog.Logger) *TokenBudget {
	return &TokenBudget{max: maxTokens, model: model, log: logger}
}

func (b *TokenBudget) encoding() *tiktoken.Tiktoken {
	b.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(b.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		}
		if err != nil {
			if b.log != nil {
				b.log.Warn().Err(err).Str("model", b.model).Msg("tokenizer unavailable, estimating prompt size")
			}
			return
		}
		b.enc = enc
	})
	return b.enc
}

// Count returns the token count of s.
func (b *TokenBudget) Count(s string) int {
	if b == nil {
		return 0
	}
	if enc := b.encoding(); enc != nil {
		return len(enc.Encode(s, nil, nil))
	}
	return (len(s) + 3) / 4
}

func (b *TokenBudget) Fits(s string) bool {
	return b == nil || b.max <= 0 || b.Count(s) <= b.max
}

// Truncate cuts s to the budget.
func (b *TokenBudget) Truncate(s string) string {
	if b.Fits(s) {
		return s
	}
	if enc := b.encoding(); enc != nil {
		return enc.Decode(enc.Encode(s, nil, nil)[:b.max])
	}
	r := []rune(s)
	if n := b.max * 4; n < len(r) {
		return string(r[:n])
	}
	return s
}
