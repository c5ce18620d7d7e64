package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelsAndKeyValues(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel("info")
	})

	SetLevel("warn")
	Info("hidden")
	Warn("skipped entry", "id", "abc", "reason", "auth")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN: ")
	assert.Contains(t, out, "skipped entry id=abc reason=auth")

	buf.Reset()
	SetLevel("debug")
	Debug("odd", "lonely")
	assert.Contains(t, buf.String(), "odd lonely")
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.log")
	require.NoError(t, Init(path))
	t.Cleanup(Cleanup)

	Error("boom", "code", 7)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ERROR: ")
	assert.Contains(t, string(data), "boom code=7")
}
