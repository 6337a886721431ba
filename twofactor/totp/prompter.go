package totp

import (
	"context"
	"time"

	"github.com/NovuntFinance/authgate/twofactor"
)

// nowFunc is swapped in tests to pin the TOTP time window.
var nowFunc = time.Now

// AutoPrompter answers step-up prompts with codes derived from a locally
// held TOTP secret. It lets headless service clients pass the two-factor
// gate without a human.
type AutoPrompter struct {
	secret string
}

// NewAutoPrompter creates a prompter for the given base32 secret.
func NewAutoPrompter(secret string) *AutoPrompter {
	return &AutoPrompter{secret: secret}
}

// Prompt implements twofactor.Prompter.
func (p *AutoPrompter) Prompt(_ context.Context, req twofactor.PromptRequest) (twofactor.PromptResponse, error) {
	code, err := CurrentCode(p.secret)
	if err != nil {
		return twofactor.PromptResponse{}, err
	}
	return twofactor.PromptResponse{ID: req.ID, Code: code}, nil
}

var _ twofactor.Prompter = (*AutoPrompter)(nil)
