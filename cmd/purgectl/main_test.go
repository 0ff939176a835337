package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prudhvinik1/accountpurge/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCmd(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "cli-secret")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--subject", "oncall", "--ttl", "5m"})

	require.NoError(t, cmd.Execute())

	claims, err := services.NewAdminAuth("cli-secret").VerifyToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "oncall", claims.Subject)
}

func TestTokenCmd_MissingSecret(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token"})

	assert.Error(t, cmd.Execute())
}

func TestRunCmd_RequiresTask(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run"})

	assert.Error(t, cmd.Execute())
}
