package auth

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnpay/internal/clock"
	"github.com/smallbiznis/learnpay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokens(t *testing.T) (*Tokens, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	tokens, err := NewTokens(config.Config{AuthJWTSecret: "test-secret"}, clk)
	require.NoError(t, err)
	return tokens, clk
}

func TestIssueAndVerify(t *testing.T) {
	tokens, _ := newTokens(t)

	raw, err := tokens.Issue(snowflake.ID(42), "Admin", time.Hour)
	require.NoError(t, err)

	principal, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), principal.UserID)
	assert.Equal(t, "admin", principal.Role)
}

func TestVerifyExpired(t *testing.T) {
	tokens, clk := newTokens(t)

	raw, err := tokens.Issue(snowflake.ID(42), "student", time.Minute)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = tokens.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	tokens, _ := newTokens(t)
	other, err := NewTokens(config.Config{AuthJWTSecret: "other-secret"}, clock.NewSystemClock())
	require.NoError(t, err)

	raw, err := other.Issue(snowflake.ID(42), "student", time.Hour)
	require.NoError(t, err)

	_, err = tokens.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = tokens.Verify("")
	assert.ErrorIs(t, err, ErrTokenMissing)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}

func TestNewTokensRequiresSecret(t *testing.T) {
	_, err := NewTokens(config.Config{}, clock.NewSystemClock())
	assert.ErrorIs(t, err, ErrNoSecret)
}
