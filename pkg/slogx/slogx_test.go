package slogx_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/vrcwatch/pkg/slogx"
)

func TestErrorFileTee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")

	logger := slogx.New(slogx.Config{
		Service:   "test",
		Level:     "info",
		Format:    "text",
		ErrorFile: path,
	})

	logger.Info("routine message")
	logger.Warn("something odd", "key", "value")
	logger.Error("something broke")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	require.Contains(t, content, "something odd")
	require.Contains(t, content, "something broke")
	require.NotContains(t, content, "routine message",
		"info records must not reach the error file")
}

func TestErrorFileDisabledByDefault(t *testing.T) {
	dir := t.TempDir()
	logger := slogx.New(slogx.Config{Service: "test", Level: "info"})
	logger.Error("boom")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
