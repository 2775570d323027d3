package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("writes json to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "hookd.log")

		logger, err := NewLogger(LoggerConfig{
			Level:      "debug",
			OutputPath: path,
			Format:     "json",
			Service:    "hookd",
		})
		require.NoError(t, err)

		logger.Info("hello")
		require.NoError(t, logger.Sync())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"hello"`)
		assert.Contains(t, string(content), `"service":"hookd"`)
		assert.Contains(t, string(content), `"timestamp"`)
	})

	t.Run("defaults to info on stdout", func(t *testing.T) {
		logger, err := NewLogger(LoggerConfig{})
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(-1))
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := NewLogger(LoggerConfig{Level: "loud"})
		assert.Error(t, err)
	})
}

func TestValidateTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		wantErr bool
	}{
		{name: "simple", tag: "the_content"},
		{name: "dotted", tag: "text.upper"},
		{name: "empty", tag: "", wantErr: true},
		{name: "space", tag: "the content", wantErr: true},
		{name: "newline", tag: "a\nb", wantErr: true},
		{name: "too long", tag: strings.Repeat("a", MaxTagLength+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTag(tt.tag)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLimit(t *testing.T) {
	assert.NoError(t, ValidateLimit(1))
	assert.NoError(t, ValidateLimit(MaxListLimit))
	assert.Error(t, ValidateLimit(0))
	assert.Error(t, ValidateLimit(MaxListLimit+1))
}
