// Package hosttest runs an in-process GameStream host for tests.
package hosttest

import (
	"bytes"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/yly97/gamestream/pkg/identity"
	"github.com/yly97/gamestream/pkg/pairing"
)

// Host implements the host half of the pairing handshake and the
// serverinfo and applist queries.
type Host struct {
	PIN        string
	AppVersion string
	Hostname   string
	UniqueID   string
	Apps       string // inner XML of the applist response

	// TamperSignature corrupts the signature sent in pairingsecret.
	TamperSignature bool
	// RejectPhase answers paired=0 to the named phase.
	RejectPhase string
	// StatusCode overrides the serverinfo status_code attribute.
	StatusCode int
	// HTTPSStatusCode overrides status_code for serverinfo over HTTPS only.
	HTTPSStatusCode int

	mu       sync.Mutex
	certPEM  []byte
	cert     *x509.Certificate
	key      *rsa.PrivateKey
	requests map[string]int

	alg             pairing.HashAlgorithm
	aesKey          []byte
	clientCertPEM   []byte
	serverSecret    []byte
	serverChallenge []byte
	clientHash      []byte
	pending         bool
	paired          bool
}

// New creates a host with its own certificate.
func New(pin, appVersion string) (*Host, error) {
	id, err := identity.Generate()
	if err != nil {
		return nil, err
	}
	cert, err := id.Certificate()
	if err != nil {
		return nil, err
	}
	key, err := id.PrivateKey()
	if err != nil {
		return nil, err
	}
	return &Host{
		PIN:        pin,
		AppVersion: appVersion,
		Hostname:   "GAMING-PC",
		UniqueID:   "4F0A9F6C-5A4A-4F2E-9C61-2C3F2C6A1B0E",
		Apps:       DefaultApps(),
		certPEM:    id.CertPEM,
		cert:       cert,
		key:        key,
		requests:   make(map[string]int),
	}, nil
}

// Servers are the plain and client-certificate endpoints of a started Host.
type Servers struct {
	Address   string
	HTTPPort  int
	HTTPSPort int
	Plain     *httptest.Server
	Secure    *httptest.Server
}

// Start serves h over HTTP and HTTPS until the test ends.
func (h *Host) Start(t testing.TB) *Servers {
	t.Helper()

	plain := httptest.NewServer(h)
	secure := httptest.NewUnstartedServer(h)
	secure.TLS = &tls.Config{ClientAuth: tls.RequestClientCert}
	secure.StartTLS()
	t.Cleanup(func() {
		plain.Close()
		secure.Close()
	})

	s := &Servers{Plain: plain, Secure: secure}
	s.Address, s.HTTPPort = hostPort(t, plain.URL)
	_, s.HTTPSPort = hostPort(t, secure.URL)
	return s
}

func hostPort(t testing.TB, raw string) (string, int) {
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}
	return host, p
}

// Count returns how many requests of a phase the host has served.
func (h *Host) Count(phase string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests[phase]
}

func (h *Host) Paired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paired
}

func (h *Host) major() int {
	major, _ := strconv.Atoi(strings.SplitN(h.AppVersion, ".", 2)[0])
	return major
}

func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("uniqueid") == "" || q.Get("uuid") == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch r.URL.Path {
	case "/serverinfo":
		h.requests["serverinfo"]++
		h.serverInfo(w, r)
	case "/applist":
		h.requests["applist"]++
		if r.TLS == nil || !h.paired {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><root status_code="200">%s</root>`, h.Apps)
	case "/unpair":
		h.requests["unpair"]++
		h.reset()
		writeXML(w, "")
	case "/pair":
		h.pair(w, r, q)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Host) serverInfo(w http.ResponseWriter, r *http.Request) {
	code := 200
	if h.StatusCode != 0 {
		code = h.StatusCode
	}
	if r.TLS != nil && h.HTTPSStatusCode != 0 {
		code = h.HTTPSStatusCode
	}
	pairStatus := 0
	if h.paired {
		pairStatus = 1
	}
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?>
<root status_code="%d">
<hostname>%s</hostname>
<appversion>%s</appversion>
<GfeVersion>3.23.0.74</GfeVersion>
<uniqueid>%s</uniqueid>
<PairStatus>%d</PairStatus>
<currentgame>0</currentgame>
<state>SUNSHINE_SERVER_FREE</state>
</root>`, code, h.Hostname, h.AppVersion, h.UniqueID, pairStatus)
}

func (h *Host) pair(w http.ResponseWriter, r *http.Request, q url.Values) {
	var phase string
	switch {
	case q.Get("phrase") == "getservercert":
		phase = "getservercert"
	case q.Get("phrase") == "pairchallenge":
		phase = "pairchallenge"
	case q.Has("clientchallenge"):
		phase = "clientchallenge"
	case q.Has("serverchallengeresp"):
		phase = "serverchallengeresp"
	case q.Has("clientpairingsecret"):
		phase = "clientpairingsecret"
	default:
		writePaired(w, false, "")
		return
	}
	h.requests[phase]++
	if phase == h.RejectPhase {
		writePaired(w, false, "")
		return
	}

	var (
		extra string
		err   error
	)
	switch phase {
	case "getservercert":
		extra, err = h.getServerCert(q)
	case "clientchallenge":
		extra, err = h.clientChallenge(q)
	case "serverchallengeresp":
		extra, err = h.serverChallengeResp(q)
	case "clientpairingsecret":
		err = h.clientPairingSecret(q)
	case "pairchallenge":
		err = h.pairChallenge(r)
	}
	if err != nil {
		writePaired(w, false, "")
		return
	}
	writePaired(w, true, extra)
}

func (h *Host) getServerCert(q url.Values) (string, error) {
	salt, err := hex.DecodeString(q.Get("salt"))
	if err != nil {
		return "", err
	}
	if h.clientCertPEM, err = hex.DecodeString(q.Get("clientcert")); err != nil {
		return "", err
	}
	h.alg = pairing.SelectHashAlgorithm(h.major())
	h.aesKey = h.alg.DeriveKey(salt, []byte(h.PIN))
	return "<plaincert>" + hex.EncodeToString(h.certPEM) + "</plaincert>", nil
}

func (h *Host) clientChallenge(q url.Values) (string, error) {
	encrypted, err := hex.DecodeString(q.Get("clientchallenge"))
	if err != nil {
		return "", err
	}
	challenge, err := pairing.DecryptCBC(h.aesKey, encrypted)
	if err != nil {
		return "", err
	}
	if h.serverSecret, err = pairing.RandomBytes(16); err != nil {
		return "", err
	}
	if h.serverChallenge, err = pairing.RandomBytes(16); err != nil {
		return "", err
	}
	digest := h.alg.Hash(challenge, h.cert.Signature, h.serverSecret)
	response, err := pairing.EncryptCBC(h.aesKey, pairing.PadBlock(append(digest, h.serverChallenge...)))
	if err != nil {
		return "", err
	}
	return "<challengeresponse>" + hex.EncodeToString(response) + "</challengeresponse>", nil
}

func (h *Host) serverChallengeResp(q url.Values) (string, error) {
	encrypted, err := hex.DecodeString(q.Get("serverchallengeresp"))
	if err != nil {
		return "", err
	}
	decrypted, err := pairing.DecryptCBC(h.aesKey, encrypted)
	if err != nil {
		return "", err
	}
	if len(decrypted) < h.alg.DigestSize() {
		return "", fmt.Errorf("short serverchallengeresp")
	}
	h.clientHash = decrypted[:h.alg.DigestSize()]

	signature, err := pairing.Sign(h.serverSecret, h.key)
	if err != nil {
		return "", err
	}
	if h.TamperSignature {
		signature[len(signature)-1] ^= 0x01
	}
	secret := append(append([]byte{}, h.serverSecret...), signature...)
	return "<pairingsecret>" + hex.EncodeToString(secret) + "</pairingsecret>", nil
}

func (h *Host) clientPairingSecret(q url.Values) error {
	data, err := hex.DecodeString(q.Get("clientpairingsecret"))
	if err != nil {
		return err
	}
	if len(data) <= 16 {
		return fmt.Errorf("short clientpairingsecret")
	}
	clientSecret, signature := data[:16], data[16:]

	clientCert, err := identity.ParseCertificatePEM(h.clientCertPEM)
	if err != nil {
		return err
	}
	if err := pairing.Verify(clientSecret, signature, clientCert); err != nil {
		return err
	}
	expected := h.alg.Hash(h.serverChallenge, clientCert.Signature, clientSecret)
	if !bytes.Equal(expected, h.clientHash) {
		return fmt.Errorf("client hash mismatch")
	}
	h.pending = true
	return nil
}

func (h *Host) pairChallenge(r *http.Request) error {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 || !h.pending {
		return fmt.Errorf("pairchallenge without client certificate")
	}
	clientCert, err := identity.ParseCertificatePEM(h.clientCertPEM)
	if err != nil {
		return err
	}
	if !bytes.Equal(clientCert.Raw, r.TLS.PeerCertificates[0].Raw) {
		return fmt.Errorf("unexpected client certificate")
	}
	h.paired = true
	return nil
}

func (h *Host) reset() {
	h.aesKey, h.clientHash, h.serverSecret, h.serverChallenge = nil, nil, nil, nil
	h.pending, h.paired = false, false
}

func writePaired(w http.ResponseWriter, paired bool, extra string) {
	v := 0
	if paired {
		v = 1
	}
	writeXML(w, fmt.Sprintf("<paired>%d</paired>%s", v, extra))
}

func writeXML(w http.ResponseWriter, inner string) {
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><root status_code="200">%s</root>`, inner)
}
