package identity

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureIdentityIdempotent(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	store := NewStore(dir)

	first, err := store.EnsureIdentity()
	require.NoError(err)
	require.FileExists(filepath.Join(dir, CertificateFile))
	require.FileExists(filepath.Join(dir, KeyFile))

	second, err := store.EnsureIdentity()
	require.NoError(err)
	require.Equal(first.CertPEM, second.CertPEM)
	require.Equal(first.KeyPEM, second.KeyPEM)

	// A fresh store over the same directory reloads the persisted files.
	third, err := NewStore(dir).EnsureIdentity()
	require.NoError(err)
	require.Equal(first.CertPEM, third.CertPEM)

	info, err := os.Stat(filepath.Join(dir, KeyFile))
	require.NoError(err)
	require.Equal(os.FileMode(0o600), info.Mode().Perm())
}

func TestEnsureIdentityConcurrent(t *testing.T) {
	require := require.New(t)

	store := NewStore(t.TempDir())
	ids := make([]*Identity, 4)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := store.EnsureIdentity()
			if err == nil {
				ids[i] = id
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.NotNil(id)
		require.Equal(ids[0].CertPEM, id.CertPEM)
	}
}

func TestEnsureIdentityConcurrentStores(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	ids := make([]*Identity, 4)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Alternate spellings of the same directory share one lock.
			d := dir
			if i%2 == 1 {
				d = filepath.Join(dir, ".")
			}
			id, err := NewStore(d).EnsureIdentity()
			if err == nil {
				ids[i] = id
			}
		}(i)
	}
	wg.Wait()

	onDisk, err := os.ReadFile(filepath.Join(dir, CertificateFile))
	require.NoError(err)
	keyOnDisk, err := os.ReadFile(filepath.Join(dir, KeyFile))
	require.NoError(err)
	for _, id := range ids {
		require.NotNil(id)
		require.Equal(onDisk, id.CertPEM)
		require.Equal(keyOnDisk, id.KeyPEM)
	}
	_, err = ids[0].TLSCertificate()
	require.NoError(err)
}

func TestEnsureIdentityRegeneratesHalfWritten(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	store := NewStore(dir)
	first, err := store.EnsureIdentity()
	require.NoError(err)

	require.NoError(os.Remove(filepath.Join(dir, CertificateFile)))
	second, err := store.EnsureIdentity()
	require.NoError(err)
	require.NotEqual(first.KeyPEM, second.KeyPEM)
}

func TestIdentityMaterial(t *testing.T) {
	require := require.New(t)

	id, err := NewStore(t.TempDir()).EnsureIdentity()
	require.NoError(err)

	cert, err := id.Certificate()
	require.NoError(err)
	require.Equal("NVIDIA GameStream Client", cert.Subject.CommonName)
	require.True(cert.NotAfter.After(cert.NotBefore.AddDate(10, 0, 0)))

	sig, err := id.Signature()
	require.NoError(err)
	require.Equal(cert.Signature, sig)
	require.Len(sig, 256)

	key, err := id.PrivateKey()
	require.NoError(err)
	require.True(key.PublicKey.Equal(cert.PublicKey))

	_, err = id.TLSCertificate()
	require.NoError(err)
}
