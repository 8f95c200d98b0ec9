package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestValidate(t *testing.T) {
	t.Run("canonical names present", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, CertificateFile), "cert")
		writeFile(t, filepath.Join(dir, KeyFile), "key")
		require.True(t, Validate(dir))
	})

	t.Run("single candidates are copied", func(t *testing.T) {
		require := require.New(t)
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "host.crt"), "cert")
		writeFile(t, filepath.Join(dir, "host.key"), "key")

		require.True(Validate(dir))
		data, err := os.ReadFile(filepath.Join(dir, CertificateFile))
		require.NoError(err)
		require.Equal("cert", string(data))
		data, err = os.ReadFile(filepath.Join(dir, KeyFile))
		require.NoError(err)
		require.Equal("key", string(data))
	})

	t.Run("no candidates", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "readme.txt"), "x")
		require.False(t, Validate(dir))
	})

	t.Run("ambiguous candidates copy nothing", func(t *testing.T) {
		require := require.New(t)
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "a.crt"), "a")
		writeFile(t, filepath.Join(dir, "b.crt"), "b")
		writeFile(t, filepath.Join(dir, "a.key"), "k")

		require.False(Validate(dir))
		require.NoFileExists(filepath.Join(dir, CertificateFile))
		require.NoFileExists(filepath.Join(dir, KeyFile))
	})

	t.Run("failed key copy removes the copied certificate", func(t *testing.T) {
		require := require.New(t)
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "host.crt"), "cert")
		// A directory matches *.key but cannot be read as a file.
		require.NoError(os.Mkdir(filepath.Join(dir, "host.key"), 0o700))

		require.False(Validate(dir))
		require.NoFileExists(filepath.Join(dir, CertificateFile))
		require.NoFileExists(filepath.Join(dir, KeyFile))
		require.FileExists(filepath.Join(dir, "host.crt"))
	})

	t.Run("missing key only", func(t *testing.T) {
		require := require.New(t)
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, CertificateFile), "cert")
		writeFile(t, filepath.Join(dir, "client.key"), "key")

		require.True(Validate(dir))
		require.FileExists(filepath.Join(dir, KeyFile))
	})
}
