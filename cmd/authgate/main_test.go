package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTHGATE_TOKEN_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("AUTHGATE_GITHUB_CLIENT_ID", "cid")
	t.Setenv("AUTHGATE_GITHUB_CLIENT_SECRET", "csecret")
}

func TestTokenIssueVerify(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "", "token", "issue", "--subject", "42", "--username", "hubot", "--session", "sid-1")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	require.Equal(t, 2, strings.Count(token, "."))

	out, err = run(t, token+"\n", "token", "verify")
	require.NoError(t, err)
	var p struct {
		SubjectID string `json:"subject_id"`
		Username  string `json:"username"`
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "42", p.SubjectID)
	assert.Equal(t, "hubot", p.Username)
	assert.Equal(t, "sid-1", p.SessionID)

	_, err = run(t, "", "token", "verify", token[:len(token)-2]+"xx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature_mismatch")
}

func TestConfigCommandRedacts(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "client_id: cid")
	assert.NotContains(t, out, "0123456789abcdef0123456789abcdef")
	assert.NotContains(t, out, "csecret")
}

func TestConfigCommandFailsOnInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTHGATE_TOKEN_SECRET", "short")
	_, err := run(t, "", "config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token.secret")
}
