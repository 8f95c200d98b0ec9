package pairing

import (
	"crypto/x509"
)

type pairState uint8

const (
	pairErrored pairState = iota
	pairSaltExchange
	pairChallengeExchange
	pairSecretExchange
	pairPinConfirmation
	pairFinalSecretSend
	pairSecureReassert
	pairPaired
)

func (s pairState) String() string {
	switch s {
	case pairErrored:
		return "Errored"
	case pairSaltExchange:
		return "SaltExchange"
	case pairChallengeExchange:
		return "ChallengeExchange"
	case pairSecretExchange:
		return "SecretExchange"
	case pairPinConfirmation:
		return "PinConfirmation"
	case pairFinalSecretSend:
		return "FinalSecretSend"
	case pairSecureReassert:
		return "SecureReassert"
	case pairPaired:
		return "Paired"
	default:
		return "Unknown"
	}
}

// unpairOnFailure reports whether a failure in s leaves pairing state on the
// host that has to be cleared.
func (s pairState) unpairOnFailure() bool {
	return s > pairSaltExchange && s < pairPaired
}

// session holds the mutable state of one Pair call.
type session struct {
	alg HashAlgorithm
	pin []byte

	salt   []byte
	aesKey []byte

	clientCertSignature []byte

	serverCert          *x509.Certificate
	serverCertPEM       []byte
	serverCertSignature []byte

	challenge           []byte
	serverChallengeHash []byte
	serverSecretPortion []byte

	clientSecret []byte
	serverSecret []byte
}

func (s *session) wipe() {
	for _, b := range [][]byte{
		s.pin, s.salt, s.aesKey, s.challenge, s.serverChallengeHash,
		s.serverSecretPortion, s.clientSecret, s.serverSecret,
	} {
		for i := range b {
			b[i] = 0
		}
	}
}
