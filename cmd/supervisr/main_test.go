package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHelpListsCommands(t *testing.T) {
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())
	for _, c := range []string{"serve", "demo", "status", "stop", "register", "deps", "login", "hash-password"} {
		assert.Contains(t, out.String(), c)
	}
}

func TestServeRequiresConfig(t *testing.T) {
	root := buildRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file required")
}

func TestStopRequiresName(t *testing.T) {
	root := buildRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"stop", "--api-url", "http://127.0.0.1:1/api"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process name is required")
}

func TestHashPassword(t *testing.T) {
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"hash-password", "s3cret"})
	require.NoError(t, root.Execute())
	h := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(h, "$2"), h)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("s3cret")))
}

func TestLoginRequiresCredentials(t *testing.T) {
	root := buildRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"login", "--api-url", "http://127.0.0.1:1/api"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user and --password")
}
