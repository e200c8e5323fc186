package logger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeKVsRedactsSecretsAndHashesUsers(t *testing.T) {
	out := sanitizeKVs([]any{
		"api_key", "sk-live",
		"user_id", "user-123",
		"tokens_in", 12,
		"model", "openai/gpt-4o",
		"dangling",
	})

	require.Len(t, out, 9)
	require.Equal(t, "[REDACTED]", out[1])
	hashed, ok := out[3].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(hashed, "hash:"))
	require.NotContains(t, hashed, "user-123")
	require.Equal(t, 12, out[5])
	require.Equal(t, "openai/gpt-4o", out[7])
	require.Equal(t, "dangling", out[8])
}

func TestSanitizeValueRedactsJWTLookingStrings(t *testing.T) {
	jwtLike := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1c2VyLTEyMyJ9.signature"
	require.Equal(t, "[REDACTED]", sanitizeValue("detail", jwtLike))
	require.Equal(t, "plain", sanitizeValue("detail", "plain"))
}

func TestNopLoggerAcceptsCalls(t *testing.T) {
	log := Nop().With("component", "test")
	log.Info("hello", "chat_id", "c1")
	log.Warn("careful")
	log.Sync()
}
