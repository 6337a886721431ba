package totp

import (
	"context"
	"strings"
	"testing"
	"time"

	potp "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NovuntFinance/authgate/twofactor"
)

func TestGenerateSecret(t *testing.T) {
	key, uri, err := GenerateSecret("Novunt", "user@novunt.com")
	require.NoError(t, err)
	require.NotNil(t, key)

	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/"))
	assert.Contains(t, uri, "Novunt")
	assert.NotEmpty(t, key.Secret())
}

func TestCurrentCodeUsesPinnedClock(t *testing.T) {
	key, _, err := GenerateSecret("Novunt", "user@novunt.com")
	require.NoError(t, err)

	fixed := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	orig := nowFunc
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = orig }()

	code, err := CurrentCode(key.Secret())
	require.NoError(t, err)

	want, err := potp.GenerateCode(key.Secret(), fixed)
	require.NoError(t, err)
	assert.Equal(t, want, code)
}

func TestAutoPrompterAnswersWithValidCode(t *testing.T) {
	key, _, err := GenerateSecret("Novunt", "user@novunt.com")
	require.NoError(t, err)

	prompter := NewAutoPrompter(key.Secret())
	req := twofactor.PromptRequest{Method: "POST", URL: "/wallet/withdraw"}

	resp, err := prompter.Prompt(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, req.ID, resp.ID)
	assert.False(t, resp.Cancelled)
	assert.True(t, ValidateCode(key.Secret(), resp.Code))
}

func TestAutoPrompterBadSecret(t *testing.T) {
	prompter := NewAutoPrompter("not base32!!")

	_, err := prompter.Prompt(context.Background(), twofactor.PromptRequest{})
	assert.Error(t, err)
}

func TestRecoveryCodesRoundTrip(t *testing.T) {
	plain, hashed, err := GenerateRecoveryCodes(4, 8)
	require.NoError(t, err)
	require.Len(t, plain, 4)
	require.Len(t, hashed, 4)

	seen := make(map[string]bool)
	for _, code := range plain {
		assert.Len(t, code, 8)
		assert.False(t, seen[code], "recovery codes must be unique")
		seen[code] = true
	}

	ok, idx := VerifyRecoveryCode(hashed, plain[2])
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	ok, idx = VerifyRecoveryCode(hashed, "nosuchcode")
	assert.False(t, ok)
	assert.Equal(t, -1, idx)
}
