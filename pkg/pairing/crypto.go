package pairing

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/pion/dtls/v2/pkg/crypto/hash"
)

const (
	saltSize   = 16
	secretSize = 16 // challenge, client secret and server secret
	pinLength  = 4
)

var (
	ErrInvalidBlockLength = errors.New("input is not a multiple of the AES block size")
	errSignatureMismatch  = errors.New("signature mismatch")
	errUnsupportedKey     = errors.New("unsupported public key algorithm")
)

// HashAlgorithm is the digest used throughout a single pairing attempt.
type HashAlgorithm hash.Algorithm

const (
	SHA1   = HashAlgorithm(hash.SHA1)
	SHA256 = HashAlgorithm(hash.SHA256)
)

// SelectHashAlgorithm picks the pairing digest for a host major version.
func SelectHashAlgorithm(majorVersion int) HashAlgorithm {
	if majorVersion >= 7 {
		return SHA256
	}
	return SHA1
}

func (h HashAlgorithm) String() string {
	return hash.Algorithm(h).String()
}

// DigestSize is 20 for SHA1 and 32 for SHA256.
func (h HashAlgorithm) DigestSize() int {
	return hash.Algorithm(h).CryptoHash().Size()
}

// KeySize is the AES key length derived under this algorithm.
func (h HashAlgorithm) KeySize() int {
	if h == SHA256 {
		return 32
	}
	return 16
}

// ChallengeResponseSize is the decrypted length of the host's challenge
// response: the challenge hash followed by the server secret portion.
func (h HashAlgorithm) ChallengeResponseSize() int {
	return h.DigestSize() + secretSize
}

// Hash digests the concatenation of parts.
func (h HashAlgorithm) Hash(parts ...[]byte) []byte {
	var buf []byte
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return hash.Algorithm(h).Digest(buf)
}

// DeriveKey derives the session AES key from hash(salt ++ pin).
func (h HashAlgorithm) DeriveKey(salt, pin []byte) []byte {
	return h.Hash(salt, pin)[:h.KeySize()]
}

// EncryptCBC encrypts with AES-CBC, a zero IV and no padding.
func EncryptCBC(key, plaintext []byte) ([]byte, error) {
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, ErrInvalidBlockLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("could not create cipher: %w", err)
	}
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, plaintext)
	return out, nil
}

// DecryptCBC is the inverse of EncryptCBC.
func DecryptCBC(key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidBlockLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("could not create cipher: %w", err)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, ciphertext)
	return out, nil
}

// PadBlock zero-pads b to the next multiple of the AES block size.
func PadBlock(b []byte) []byte {
	n := (len(b) + aes.BlockSize - 1) / aes.BlockSize * aes.BlockSize
	out := make([]byte, n)
	copy(out, b)
	return out
}

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Sign produces an RSA PKCS#1 v1.5 signature over SHA-256 of data.
func Sign(data []byte, key *rsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
}

// Verify checks a PKCS#1 v1.5 SHA-256 signature of data against the public
// key of cert.
func Verify(data, signature []byte, cert *x509.Certificate) error {
	switch p := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		digest := sha256.Sum256(data)
		if err := rsa.VerifyPKCS1v15(p, crypto.SHA256, digest[:], signature); err != nil {
			return errSignatureMismatch
		}
		return nil
	default:
		return errUnsupportedKey
	}
}
