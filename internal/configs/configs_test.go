package configs

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var allVars = []string{
	"ENVIRONMENT", "HOST", "PORT", "ADMIN_PORT", "ALLOWED_ORIGINS", "DATABASE_URL",
	"JOURNAL_BUFFER", "MAX_FRAME_SIZE", "OUTBOUND_QUEUE_SIZE", "OVERFLOW_POLICY", "WRITE_TIMEOUT",
}

// clearEnv unsets every variable Parse reads; t.Setenv restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allVars {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestParse_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse()
	require.NoError(t, err)

	require.Equal(t, "development", cfg.Environment)
	require.True(t, cfg.IsDevelopment())
	require.Equal(t, 5000, cfg.Port)
	require.Equal(t, ":5000", cfg.ListenAddress())
	require.Equal(t, 8080, cfg.AdminPort)
	require.Equal(t, ":8080", cfg.AdminAddress())
	require.Empty(t, cfg.AllowedOrigins)
	require.False(t, cfg.JournalEnabled())
	require.Equal(t, 1024, cfg.JournalBuffer)
	require.Zero(t, cfg.MaxFrameSize)
	require.Equal(t, 256, cfg.OutboundQueueSize)
	require.Equal(t, "block", cfg.OverflowPolicy)
	require.Zero(t, cfg.WriteTimeout)
}

func TestParse_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "6000")
	t.Setenv("ADMIN_PORT", "0")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("DATABASE_URL", "postgres://relay@localhost/relay")
	t.Setenv("MAX_FRAME_SIZE", "65536")
	t.Setenv("OUTBOUND_QUEUE_SIZE", "16")
	t.Setenv("OVERFLOW_POLICY", "disconnect")
	t.Setenv("WRITE_TIMEOUT", "2s")

	cfg, err := Parse()
	require.NoError(t, err)

	require.False(t, cfg.IsDevelopment())
	require.Equal(t, "127.0.0.1:6000", cfg.ListenAddress())
	require.Empty(t, cfg.AdminAddress())
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	require.True(t, cfg.JournalEnabled())
	require.Equal(t, uint32(65536), cfg.MaxFrameSize)
	require.Equal(t, 16, cfg.OutboundQueueSize)
	require.Equal(t, "disconnect", cfg.OverflowPolicy)
	require.Equal(t, 2*time.Second, cfg.WriteTimeout)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "privileged port", key: "PORT", value: "80"},
		{name: "port not a number", key: "PORT", value: "abc"},
		{name: "admin port out of range", key: "ADMIN_PORT", value: "70000"},
		{name: "unknown overflow policy", key: "OVERFLOW_POLICY", value: "drop"},
		{name: "empty queue", key: "OUTBOUND_QUEUE_SIZE", value: "0"},
		{name: "negative write timeout", key: "WRITE_TIMEOUT", value: "-1s"},
		{name: "negative frame size", key: "MAX_FRAME_SIZE", value: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Parse()
			require.Error(t, err)
		})
	}
}
