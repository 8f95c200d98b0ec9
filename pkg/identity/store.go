package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	CertificateFile = "nvidia.crt"
	KeyFile         = "nvidia.key"

	commonName = "NVIDIA GameStream Client"
	rsaBits    = 2048
	validFor   = 20 * 365 * 24 * time.Hour
)

var (
	ErrCertificateMissing   = errors.New("client certificate missing")
	ErrMalformedCertificate = errors.New("malformed certificate")
)

// dirLocks holds one lock per certificates directory, shared by every Store
// in the process.
var (
	dirLocksMu sync.Mutex
	dirLocks   = make(map[string]*sync.Mutex)
)

func dirLock(dir string) *sync.Mutex {
	key, err := filepath.Abs(dir)
	if err != nil {
		key = filepath.Clean(dir)
	}
	dirLocksMu.Lock()
	defer dirLocksMu.Unlock()
	mu, ok := dirLocks[key]
	if !ok {
		mu = new(sync.Mutex)
		dirLocks[key] = mu
	}
	return mu
}

// Store owns the client identity persisted under a certificates directory.
type Store struct {
	dir string
	mu  *sync.Mutex // guards the check-then-create sequence of EnsureIdentity
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, mu: dirLock(dir)}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) certPath() string { return filepath.Join(s.dir, CertificateFile) }
func (s *Store) keyPath() string  { return filepath.Join(s.dir, KeyFile) }

// EnsureIdentity loads the certificate and key files when both exist and
// otherwise generates and persists a new self-signed identity.
func (s *Store) EnsureIdentity() (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exists(s.certPath()) && exists(s.keyPath()) {
		certPEM, err := os.ReadFile(s.certPath())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCertificateMissing, err)
		}
		keyPEM, err := os.ReadFile(s.keyPath())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCertificateMissing, err)
		}
		log.Debugf("loaded client identity from %s", s.dir)
		return &Identity{CertPEM: certPEM, KeyPEM: keyPEM}, nil
	}

	log.Infof("generating client identity in %s", s.dir)
	id, err := Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertificateMissing, err)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertificateMissing, err)
	}
	// The key goes first: a crash between the two renames leaves the
	// certificate missing, which regenerates both on the next call.
	if err := writeFileAtomic(s.keyPath(), id.KeyPEM, 0o600); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertificateMissing, err)
	}
	if err := writeFileAtomic(s.certPath(), id.CertPEM, 0o644); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertificateMissing, err)
	}
	return id, nil
}

// Generate creates a self-signed RSA client certificate.
func Generate() (*Identity, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, err
	}

	notBefore := time.Now().Add(-time.Hour)
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validFor),
		SignatureAlgorithm:    x509.SHA256WithRSA,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}

	return &Identity{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
	}, nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
