package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func newTestCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "parley"}
	flags := cmd.PersistentFlags()
	flags.StringVar(&flagServerURL, "server", "", "")
	flags.StringVar(&flagLogLevel, "log-level", "", "")
	flags.StringVar(&flagLogFile, "log-file", "", "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestFlagsOverrideInvalidEnvironment(t *testing.T) {
	req := require.New(t)
	t.Setenv("PARLEY_SERVER_URL", "ftp://nowhere")
	t.Setenv("PARLEY_LOG_LEVEL", "loud")

	cmd := newTestCommand(t, "--server", "http://chat.example.com:5000", "--log-level", "debug")
	cfg, err := loadConfig(cmd)

	req.NoError(err)
	req.Equal("http://chat.example.com:5000", cfg.ServerURL)
	req.Equal("debug", cfg.LogLevel)
}

func TestInvalidEnvironmentWithoutFlags(t *testing.T) {
	t.Setenv("PARLEY_SERVER_URL", "ftp://nowhere")

	_, err := loadConfig(newTestCommand(t))

	require.Error(t, err)
}

func TestInvalidFlag(t *testing.T) {
	_, err := loadConfig(newTestCommand(t, "--server", "localhost"))

	require.Error(t, err)
}

func TestDisplayHost(t *testing.T) {
	req := require.New(t)
	req.Equal("chat.example.com:5000", displayHost("http://chat.example.com:5000"))
	req.Equal("::nope", displayHost("::nope"))
}
