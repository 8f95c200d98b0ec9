package identity

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// Identity is the PEM encoded client certificate and private key.
type Identity struct {
	CertPEM []byte
	KeyPEM  []byte
}

// Certificate parses the client certificate.
func (id *Identity) Certificate() (*x509.Certificate, error) {
	return ParseCertificatePEM(id.CertPEM)
}

// Signature returns the raw signature field of the client certificate.
func (id *Identity) Signature() ([]byte, error) {
	return CertificateSignature(id.CertPEM)
}

func (id *Identity) PrivateKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(id.KeyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in private key", ErrMalformedCertificate)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCertificate, err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCertificate, err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: private key is %T, want RSA", ErrMalformedCertificate, key)
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrMalformedCertificate, block.Type)
	}
}

// TLSCertificate returns the identity as a certificate presented on the
// client-certificate channel.
func (id *Identity) TLSCertificate() (tls.Certificate, error) {
	cert, err := tls.X509KeyPair(id.CertPEM, id.KeyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %v", ErrMalformedCertificate, err)
	}
	return cert, nil
}

// ParseCertificatePEM decodes the first CERTIFICATE block in data.
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedCertificate, err)
			}
			return cert, nil
		}
		data = rest
	}
	return nil, fmt.Errorf("%w: no certificate found", ErrMalformedCertificate)
}

// CertificateSignature extracts the signature field of a PEM certificate.
func CertificateSignature(certPEM []byte) ([]byte, error) {
	cert, err := ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, err
	}
	return append([]byte{}, cert.Signature...), nil
}
