package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yly97/gamestream/internal/hosttest"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, srv *hosttest.Servers) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gamestream.toml")
	body := fmt.Sprintf(`[Host]
Address = %q
HTTPPort = %d
HTTPSPort = %d

[Client]
CertificatesDir = %q

[Logging]
Level = "warning"
`, srv.Address, srv.HTTPPort, srv.HTTPSPort, filepath.Join(dir, "certs"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestPinCommand(t *testing.T) {
	out, err := run(t, "pin")
	require.NoError(t, err)
	require.Len(t, strings.TrimSpace(out), 4)
}

func TestPairAndAppsCommands(t *testing.T) {
	require := require.New(t)

	host, err := hosttest.New("2468", "7.1.402.0")
	require.NoError(err)
	cfg := writeConfig(t, host.Start(t))

	out, err := run(t, "info", "-c", cfg)
	require.NoError(err)
	require.Contains(out, "7.1.402.0")

	_, err = run(t, "apps", "-c", cfg)
	require.Error(err)

	_, err = run(t, "pair", "-c", cfg, "--pin", "1357")
	require.Error(err)
	require.Contains(err.Error(), "PIN was not accepted")

	out, err = run(t, "pair", "-c", cfg, "--pin", "2468")
	require.NoError(err)
	require.Contains(out, "Paired with GAMING-PC")

	out, err = run(t, "apps", "-c", cfg)
	require.NoError(err)
	require.Equal(18, strings.Count(out, "\n"))

	_, err = run(t, "unpair", "-c", cfg)
	require.NoError(err)
	require.False(host.Paired())
}

func TestCertsValidateCommand(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "certs", "validate", dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.crt"), []byte("c"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.key"), []byte("k"), 0o600))
	out, err := run(t, "certs", "validate", dir)
	require.NoError(t, err)
	require.Contains(t, out, "is valid")
}
