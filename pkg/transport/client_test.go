package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yly97/gamestream/pkg/identity"
)

func splitHostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

func newTestClient(t *testing.T, plain, secure *httptest.Server) *Client {
	t.Helper()
	id, err := identity.NewStore(t.TempDir()).EnsureIdentity()
	require.NoError(t, err)

	cfg := Config{UniqueID: "0123456789ABCDEF", Timeout: 2 * time.Second}
	if plain != nil {
		cfg.Host, cfg.HTTPPort = splitHostPort(t, plain.URL)
	}
	if secure != nil {
		cfg.Host, cfg.HTTPSPort = splitHostPort(t, secure.URL)
	}
	c, err := NewClient(cfg, id)
	require.NoError(t, err)
	return c
}

func TestGetAddsIdentifiers(t *testing.T) {
	require := require.New(t)

	var seen url.Values
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		seen = r.URL.Query()
		w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?><root status_code="200"><hostname>box</hostname></root>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	root, err := c.Get(context.Background(), "serverinfo", url.Values{"phrase": {"x"}})
	require.NoError(err)
	require.Equal("/serverinfo", path)

	code, ok := root.Attr("status_code")
	require.True(ok)
	require.Equal("200", code)
	host, ok := root.ChildText("hostname")
	require.True(ok)
	require.Equal("box", host)

	require.Equal("0123456789ABCDEF", seen.Get("uniqueid"))
	require.Len(seen.Get("uuid"), 36)
	require.Equal("x", seen.Get("phrase"))

	// Every request carries a fresh uuid.
	first := seen.Get("uuid")
	_, err = c.Get(context.Background(), "serverinfo", nil)
	require.NoError(err)
	require.NotEqual(first, seen.Get("uuid"))
}

func TestGetMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<root><unclosed></root>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.Get(context.Background(), "serverinfo", nil)
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGetUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(t, srv, nil)
	srv.Close()

	_, err := c.Get(context.Background(), "serverinfo", nil)
	require.ErrorIs(t, err, ErrHostUnreachable)
}

func TestGetTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := newTestClient(t, srv, nil)
	c.plain.Timeout = 50 * time.Millisecond
	_, err := c.Get(context.Background(), "serverinfo", nil)
	require.ErrorIs(t, err, ErrHostUnreachable)
}

func TestGetAuthenticatedPresentsCertificate(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`<root status_code="200"><cn>` + r.TLS.PeerCertificates[0].Subject.CommonName + `</cn></root>`))
	}))
	srv.TLS = &tls.Config{ClientAuth: tls.RequestClientCert}
	srv.StartTLS()
	defer srv.Close()

	c := newTestClient(t, nil, srv)
	root, err := c.GetAuthenticated(context.Background(), "applist", nil)
	require.NoError(err)
	cn, _ := root.ChildText("cn")
	require.Equal("NVIDIA GameStream Client", cn)
}

func TestGetAuthenticatedRejected(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, nil, srv)
	_, err := c.GetAuthenticated(context.Background(), "applist", nil)
	require.ErrorIs(t, err, ErrAuthenticationRejected)
}
