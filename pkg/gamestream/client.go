package gamestream

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/yly97/gamestream/pkg/identity"
	"github.com/yly97/gamestream/pkg/pairing"
	"github.com/yly97/gamestream/pkg/transport"
)

var (
	ErrNotConnected = errors.New("not connected to host")
	ErrNotPaired    = errors.New("not paired with host")
	ErrBadStatus    = errors.New("host returned an unusable status")
)

// Config names the host and where the client identity lives.
type Config struct {
	Host            string
	CertificatesDir string
	HTTPPort        int
	HTTPSPort       int
	Timeout         time.Duration
}

type ClientOptions struct {
	DeviceName string
	UniqueID   string
}

var defaultClientOptions = ClientOptions{
	DeviceName: pairing.DefaultDeviceName,
}

func WithDeviceName(name string) func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.DeviceName = name
	}
}

func WithUniqueID(id string) func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.UniqueID = id
	}
}

// Client is the GameStream control-plane client for one host. It is not
// safe for concurrent use.
type Client struct {
	ClientOptions

	config    Config
	store     *identity.Store
	identity  *identity.Identity
	transport *transport.Client
	info      *ServerInfo
	paired    bool
}

func NewClient(cfg Config, optionsModifierFns ...func(*ClientOptions)) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("gamestream: host is not set")
	}
	if cfg.CertificatesDir == "" {
		return nil, errors.New("gamestream: certificates directory is not set")
	}

	options := defaultClientOptions
	for _, fn := range optionsModifierFns {
		fn(&options)
	}
	if options.UniqueID == "" {
		b, err := pairing.RandomBytes(8)
		if err != nil {
			return nil, err
		}
		options.UniqueID = strings.ToUpper(hex.EncodeToString(b))
	}

	return &Client{
		ClientOptions: options,
		config:        cfg,
		store:         identity.NewStore(cfg.CertificatesDir),
	}, nil
}

func (c *Client) ensureTransport() error {
	if c.transport != nil {
		return nil
	}
	id, err := c.store.EnsureIdentity()
	if err != nil {
		return err
	}
	t, err := transport.NewClient(transport.Config{
		Host:      c.config.Host,
		HTTPPort:  c.config.HTTPPort,
		HTTPSPort: c.config.HTTPSPort,
		Timeout:   c.config.Timeout,
		UniqueID:  c.UniqueID,
	}, id)
	if err != nil {
		return err
	}
	c.identity, c.transport = id, t
	return nil
}

// Connect queries serverinfo over HTTPS and falls back to plain HTTP once
// when that does not yield status 200.
func (c *Client) Connect(ctx context.Context) (*ServerInfo, error) {
	c.info, c.paired = nil, false
	if err := c.ensureTransport(); err != nil {
		return nil, err
	}

	info, err := c.serverInfo(ctx, true)
	if err != nil || info.StatusCode != 200 {
		if err != nil {
			log.Debugf("serverinfo over https: %v", err)
		} else {
			log.Debugf("serverinfo over https: status %d", info.StatusCode)
		}
		if info, err = c.serverInfo(ctx, false); err != nil {
			return nil, err
		}
	}
	if info.StatusCode != 200 {
		return nil, fmt.Errorf("%w: serverinfo status_code %d", ErrBadStatus, info.StatusCode)
	}

	log.Infof("connected to %s (%s), version %s, paired=%t",
		info.Hostname, info.Host, info.ServerVersion, info.PairStatus)
	c.info = info
	return info, nil
}

func (c *Client) serverInfo(ctx context.Context, secure bool) (*ServerInfo, error) {
	get := c.transport.Get
	if secure {
		get = c.transport.GetAuthenticated
	}
	root, err := get(ctx, "serverinfo", nil)
	if err != nil {
		return nil, err
	}
	return parseServerInfo(c.config.Host, c.UniqueID, root)
}

// ServerInfo returns the result of the last successful Connect.
func (c *Client) ServerInfo() *ServerInfo {
	return c.info
}

// IsPaired reports the pair status of the connected host, including a
// pairing completed since Connect.
func (c *Client) IsPaired() (bool, error) {
	if c.info == nil {
		return false, ErrNotConnected
	}
	return c.info.PairStatus || c.paired, nil
}

// Pair runs the pairing handshake with pin. Calling Pair before a successful
// Connect returns ErrNotConnected without contacting the host; that error is
// not a *pairing.Error, so check it with errors.Is before pairing.StatusOf.
// Any other error is a *pairing.Error; use pairing.StatusOf to decide how to
// react.
func (c *Client) Pair(ctx context.Context, pin string) error {
	if c.info == nil || c.info.StatusCode != 200 {
		return ErrNotConnected
	}
	err := pairing.Pair(ctx, c.transport, c.identity, c.info.ServerVersion.Major, pin,
		&pairing.Config{DeviceName: c.DeviceName})
	if err != nil {
		return err
	}
	c.paired = true
	return nil
}

// Unpair asks the host to forget this client.
func (c *Client) Unpair(ctx context.Context) error {
	if c.info == nil {
		return ErrNotConnected
	}
	if _, err := c.transport.Get(ctx, "unpair", nil); err != nil {
		return err
	}
	info := *c.info
	info.PairStatus = false
	c.info, c.paired = &info, false
	return nil
}

// ListApplications returns the host application catalog.
func (c *Client) ListApplications(ctx context.Context) ([]AppEntry, error) {
	paired, err := c.IsPaired()
	if err != nil {
		return nil, err
	}
	if !paired {
		return nil, ErrNotPaired
	}
	root, err := c.transport.GetAuthenticated(ctx, "applist", nil)
	if err != nil {
		return nil, err
	}
	return parseAppList(root)
}
