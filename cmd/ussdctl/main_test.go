package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/ussd-gateway-go/internal/util"
)

const goodFlow = `
apps:
  - code: "*384#"
    name: Chama
    entry_menu: main
    menus:
      - code: main
        type: options
        text: Welcome
        options:
          - {id: 1, label: Help, next: help}
      - {code: help, type: final, text: Call 100}
`

const brokenFlow = `
apps:
  - code: "*384#"
    name: Chama
    entry_menu: main
    menus:
      - code: main
        type: options
        text: Welcome
        options:
          - {id: 1, label: Help, next: missing}
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFlow(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCheckCommand(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		out, err := run(t, "check", writeFlow(t, goodFlow))
		require.NoError(t, err)
		assert.Contains(t, out, "1 app(s) OK")
	})

	t.Run("dangling option", func(t *testing.T) {
		out, err := run(t, "check", writeFlow(t, brokenFlow))
		require.Error(t, err)
		assert.Contains(t, out, "missing")
		assert.Contains(t, err.Error(), "1 problem(s)")
	})

	t.Run("unreadable file", func(t *testing.T) {
		_, err := run(t, "check", filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestHashKeyCommand(t *testing.T) {
	out, err := run(t, "hash-key", "0123456789abcdef-admin")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))
	assert.True(t, util.CheckPasswordHash("0123456789abcdef-admin", hash))

	_, err = run(t, "hash-key", "short")
	assert.Error(t, err)
}

func TestCommandsNeedDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	databaseURL = ""

	_, err := run(t, "trail", "sess-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database")

	_, err = run(t, "unblock", "not-a-phone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid phone")
}
