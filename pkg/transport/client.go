package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/yly97/gamestream/pkg/identity"
)

const (
	DefaultHTTPPort  = 47989
	DefaultHTTPSPort = 47984
	DefaultTimeout   = 5 * time.Second

	maxBodySize = 4 << 20
)

var (
	ErrHostUnreachable        = errors.New("host unreachable")
	ErrMalformedResponse      = errors.New("malformed response")
	ErrAuthenticationRejected = errors.New("client certificate rejected")
)

type Config struct {
	Host      string
	HTTPPort  int
	HTTPSPort int
	Timeout   time.Duration
	UniqueID  string
}

func (c *Config) applyDefaults() {
	if c.HTTPPort == 0 {
		c.HTTPPort = DefaultHTTPPort
	}
	if c.HTTPSPort == 0 {
		c.HTTPSPort = DefaultHTTPSPort
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Client issues GameStream queries against a single host. Requests are
// synchronous and never retried.
type Client struct {
	config Config
	plain  *http.Client
	secure *http.Client
}

// NewClient binds a client to cfg.Host. The HTTPS channel presents id as
// the client certificate.
func NewClient(cfg Config, id *identity.Identity) (*Client, error) {
	cfg.applyDefaults()
	cert, err := id.TLSCertificate()
	if err != nil {
		return nil, err
	}

	secure := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			// Hosts serve self-signed certificates; trust is established by pairing.
			InsecureSkipVerify: true,
		},
		DisableKeepAlives: true,
	}
	return &Client{
		config: cfg,
		plain: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		secure: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: secure,
		},
	}, nil
}

func (c *Client) Host() string {
	return c.config.Host
}

// Get performs a plain HTTP query.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (*Node, error) {
	return c.do(ctx, c.plain, "http", c.config.HTTPPort, endpoint, params)
}

// GetAuthenticated performs an HTTPS query presenting the client certificate.
func (c *Client) GetAuthenticated(ctx context.Context, endpoint string, params url.Values) (*Node, error) {
	return c.do(ctx, c.secure, "https", c.config.HTTPSPort, endpoint, params)
}

func (c *Client) buildURL(scheme string, port int, endpoint string, params url.Values) (string, error) {
	query := url.Values{}
	for k, v := range params {
		query[k] = append([]string{}, v...)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	query.Set("uniqueid", c.config.UniqueID)
	query.Set("uuid", id.String())

	u := url.URL{
		Scheme:   scheme,
		Host:     net.JoinHostPort(c.config.Host, strconv.Itoa(port)),
		Path:     "/" + endpoint,
		RawQuery: query.Encode(),
	}
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, scheme string, port int, endpoint string, params url.Values) (*Node, error) {
	target, err := c.buildURL(scheme, port, endpoint, params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	log.Tracef("[transport] GET %s", target)

	resp, err := hc.Do(req)
	if err != nil {
		if scheme == "https" && isTLSRejection(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrAuthenticationRejected, endpoint, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrHostUnreachable, endpoint, err)
	}
	defer resp.Body.Close()

	if scheme == "https" && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return nil, fmt.Errorf("%w: %s: %s", ErrAuthenticationRejected, endpoint, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrHostUnreachable, endpoint, err)
	}
	root, err := Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, endpoint, err)
	}
	return root, nil
}

func isTLSRejection(err error) bool {
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return true
	}
	var verify *tls.CertificateVerificationError
	return errors.As(err, &verify)
}
