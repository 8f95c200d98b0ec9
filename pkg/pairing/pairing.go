package pairing

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"

	log "github.com/sirupsen/logrus"

	"github.com/yly97/gamestream/pkg/identity"
	"github.com/yly97/gamestream/pkg/transport"
)

const DefaultDeviceName = "roth"

// Transport is the query surface the handshake runs over.
type Transport interface {
	Get(ctx context.Context, endpoint string, params url.Values) (*transport.Node, error)
	GetAuthenticated(ctx context.Context, endpoint string, params url.Values) (*transport.Node, error)
}

type Config struct {
	DeviceName string
}

type pairingFSM struct {
	transport Transport
	identity  *identity.Identity
	clientKey *rsa.PrivateKey
	session   *session
	config    *Config
}

// Pair runs the pairing handshake against a host whose major version is
// serverMajor. A nil error means the client is paired; otherwise the error
// is an *Error whose Status tells the caller how to react.
//
// Pair must not run concurrently for the same host.
func Pair(ctx context.Context, t Transport, id *identity.Identity, serverMajor int, pin string, cfg *Config) error {
	if !validPin(pin) {
		return wrapPairError(pairSaltExchange, ErrInvalidPin)
	}
	var conf Config
	if cfg != nil {
		conf = *cfg
	}
	if conf.DeviceName == "" {
		conf.DeviceName = DefaultDeviceName
	}

	key, err := id.PrivateKey()
	if err != nil {
		return wrapPairError(pairSaltExchange, err)
	}
	certSig, err := id.Signature()
	if err != nil {
		return wrapPairError(pairSaltExchange, err)
	}

	s := &session{
		alg:                 SelectHashAlgorithm(serverMajor),
		pin:                 []byte(pin),
		clientCertSignature: certSig,
	}
	defer s.wipe()

	m := &pairingFSM{
		transport: t,
		identity:  id,
		clientKey: key,
		session:   s,
		config:    &conf,
	}
	log.Debugf("[pairing] using %s for server major version %d", s.alg, serverMajor)
	return m.run(ctx)
}

func (m *pairingFSM) run(ctx context.Context) error {
	state := pairSaltExchange
	for {
		if state == pairPaired {
			log.Infof("[pairing] paired with %s", m.host())
			return nil
		}

		var (
			next pairState
			err  error
		)
		switch state {
		case pairSaltExchange:
			next, err = m.saltExchange(ctx)
		case pairChallengeExchange:
			next, err = m.challengeExchange(ctx)
		case pairSecretExchange:
			next, err = m.secretExchange(ctx)
		case pairPinConfirmation:
			next, err = m.pinConfirmation(ctx)
		case pairFinalSecretSend:
			next, err = m.finalSecretSend(ctx)
		case pairSecureReassert:
			next, err = m.secureReassert(ctx)
		default:
			err = errInvalidPairState
		}
		if err != nil {
			pe := wrapPairError(state, err)
			log.Warnf("[pairing] %v", pe)
			if state.unpairOnFailure() {
				m.unpair(ctx)
			}
			return pe
		}
		log.Debugf("[pairing] %s -> %s", state, next)
		state = next
	}
}

func (m *pairingFSM) saltExchange(ctx context.Context) (pairState, error) {
	s := m.session
	var err error
	if s.salt, err = RandomBytes(saltSize); err != nil {
		return pairErrored, err
	}
	s.aesKey = s.alg.DeriveKey(s.salt, s.pin)

	params := m.params()
	params.Set("phrase", "getservercert")
	params.Set("salt", hex.EncodeToString(s.salt))
	params.Set("clientcert", hex.EncodeToString(m.identity.CertPEM))
	root, err := m.query(ctx, params)
	if err != nil {
		return pairErrored, err
	}

	if s.serverCertPEM, err = hexField(root, "plaincert"); err != nil {
		return pairErrored, fmt.Errorf("%w: %v", ErrPairingRejected, err)
	}
	if s.serverCert, err = identity.ParseCertificatePEM(s.serverCertPEM); err != nil {
		return pairErrored, fmt.Errorf("%w: server certificate: %v", ErrPairingRejected, err)
	}
	s.serverCertSignature = s.serverCert.Signature
	log.Tracef("[pairing] server certificate subject %s", s.serverCert.Subject)

	return pairChallengeExchange, nil
}

func (m *pairingFSM) challengeExchange(ctx context.Context) (pairState, error) {
	s := m.session
	var err error
	if s.challenge, err = RandomBytes(secretSize); err != nil {
		return pairErrored, err
	}
	encrypted, err := EncryptCBC(s.aesKey, s.challenge)
	if err != nil {
		return pairErrored, err
	}

	params := m.params()
	params.Set("clientchallenge", hex.EncodeToString(encrypted))
	root, err := m.query(ctx, params)
	if err != nil {
		return pairErrored, err
	}

	response, err := hexField(root, "challengeresponse")
	if err != nil {
		return pairErrored, err
	}
	decrypted, err := DecryptCBC(s.aesKey, response)
	if err != nil {
		return pairErrored, fmt.Errorf("%w: challengeresponse: %v", transport.ErrMalformedResponse, err)
	}

	hashEnd, secretEnd := s.alg.DigestSize(), s.alg.ChallengeResponseSize()
	if len(decrypted) < secretEnd {
		return pairErrored, fmt.Errorf("%w: challengeresponse is %d bytes, want %d",
			transport.ErrMalformedResponse, len(decrypted), secretEnd)
	}
	s.serverChallengeHash = append([]byte{}, decrypted[:hashEnd]...)
	s.serverSecretPortion = append([]byte{}, decrypted[hashEnd:secretEnd]...)

	return pairSecretExchange, nil
}

func (m *pairingFSM) secretExchange(ctx context.Context) (pairState, error) {
	s := m.session
	var err error
	if s.clientSecret, err = RandomBytes(secretSize); err != nil {
		return pairErrored, err
	}
	challengeResponse := s.alg.Hash(s.serverSecretPortion, s.clientCertSignature, s.clientSecret)
	encrypted, err := EncryptCBC(s.aesKey, PadBlock(challengeResponse))
	if err != nil {
		return pairErrored, err
	}

	params := m.params()
	params.Set("serverchallengeresp", hex.EncodeToString(encrypted))
	root, err := m.query(ctx, params)
	if err != nil {
		return pairErrored, err
	}

	pairingSecret, err := hexField(root, "pairingsecret")
	if err != nil {
		return pairErrored, err
	}
	if len(pairingSecret) <= secretSize {
		return pairErrored, fmt.Errorf("%w: pairingsecret is %d bytes", transport.ErrMalformedResponse, len(pairingSecret))
	}
	serverSecret, serverSignature := pairingSecret[:secretSize], pairingSecret[secretSize:]
	if err := Verify(serverSecret, serverSignature, s.serverCert); err != nil {
		return pairErrored, fmt.Errorf("%w: %v", ErrSignatureVerificationFailed, err)
	}
	s.serverSecret = append([]byte{}, serverSecret...)

	return pairPinConfirmation, nil
}

func (m *pairingFSM) pinConfirmation(ctx context.Context) (pairState, error) {
	s := m.session
	expected := s.alg.Hash(s.challenge, s.serverCertSignature, s.serverSecret)
	if subtle.ConstantTimeCompare(expected, s.serverChallengeHash) != 1 {
		return pairErrored, ErrWrongPin
	}
	return pairFinalSecretSend, nil
}

func (m *pairingFSM) finalSecretSend(ctx context.Context) (pairState, error) {
	s := m.session
	signature, err := Sign(s.clientSecret, m.clientKey)
	if err != nil {
		return pairErrored, err
	}

	params := m.params()
	params.Set("clientpairingsecret", hex.EncodeToString(bytes.Join([][]byte{s.clientSecret, signature}, nil)))
	if _, err := m.query(ctx, params); err != nil {
		return pairErrored, err
	}
	return pairSecureReassert, nil
}

func (m *pairingFSM) secureReassert(ctx context.Context) (pairState, error) {
	params := m.params()
	params.Set("phrase", "pairchallenge")
	root, err := m.transport.GetAuthenticated(ctx, "pair", params)
	if err != nil {
		return pairErrored, err
	}
	if err := requirePaired(root); err != nil {
		return pairErrored, err
	}
	return pairPaired, nil
}

// unpair is best-effort cleanup; its outcome is ignored.
func (m *pairingFSM) unpair(ctx context.Context) {
	if _, err := m.transport.Get(context.WithoutCancel(ctx), "unpair", nil); err != nil {
		log.Debugf("[pairing] unpair: %v", err)
	}
}

func (m *pairingFSM) params() url.Values {
	return url.Values{
		"devicename":  {m.config.DeviceName},
		"updateState": {"1"},
	}
}

// query sends an unauthenticated pair request and requires paired == 1.
func (m *pairingFSM) query(ctx context.Context, params url.Values) (*transport.Node, error) {
	root, err := m.transport.Get(ctx, "pair", params)
	if err != nil {
		return nil, err
	}
	if err := requirePaired(root); err != nil {
		return nil, err
	}
	return root, nil
}

func (m *pairingFSM) host() string {
	if h, ok := m.transport.(interface{ Host() string }); ok {
		return h.Host()
	}
	return "host"
}

func requirePaired(root *transport.Node) error {
	if paired, _ := root.ChildText("paired"); paired != "1" {
		return fmt.Errorf("%w: paired=%q", ErrPairingRejected, paired)
	}
	return nil
}

func hexField(root *transport.Node, name string) ([]byte, error) {
	text, ok := root.ChildText(name)
	if !ok || text == "" {
		return nil, fmt.Errorf("%w: missing %s", transport.ErrMalformedResponse, name)
	}
	b, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", transport.ErrMalformedResponse, name, err)
	}
	return b, nil
}

func validPin(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
