package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/yly97/gamestream/pkg/gamestream"
	"github.com/yly97/gamestream/pkg/pairing"
	"github.com/yly97/gamestream/pkg/transport"
)

const defaultLogLevel = "INFO"

// Host is the streaming host to register.
type Host struct {
	Address    string
	HTTPPort   int
	HTTPSPort  int
	TimeoutSec int
}

func (h *Host) applyDefaults() {
	if h.HTTPPort == 0 {
		h.HTTPPort = transport.DefaultHTTPPort
	}
	if h.HTTPSPort == 0 {
		h.HTTPSPort = transport.DefaultHTTPSPort
	}
	if h.TimeoutSec == 0 {
		h.TimeoutSec = int(transport.DefaultTimeout / time.Second)
	}
}

func (h *Host) validate() error {
	if h.Address == "" {
		return errors.New("config: Host: Address is not set")
	}
	for _, p := range []int{h.HTTPPort, h.HTTPSPort} {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("config: Host: invalid port %d", p)
		}
	}
	if h.TimeoutSec < 0 {
		return fmt.Errorf("config: Host: invalid TimeoutSec %d", h.TimeoutSec)
	}
	return nil
}

// Client is the local client identity.
type Client struct {
	CertificatesDir string
	DeviceName      string
	UniqueID        string
}

func (c *Client) applyDefaults() {
	if c.DeviceName == "" {
		c.DeviceName = pairing.DefaultDeviceName
	}
}

func (c *Client) validate() error {
	if c.CertificatesDir == "" {
		return errors.New("config: Client: CertificatesDir is not set")
	}
	return nil
}

// Logging is the logging configuration.
type Logging struct {
	Level string
}

func (l *Logging) applyDefaults() {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
}

func (l *Logging) validate() error {
	if _, err := log.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("config: Logging: %v", err)
	}
	return nil
}

// Config is the top level configuration.
type Config struct {
	Host    *Host
	Client  *Client
	Logging *Logging
}

// FixupAndValidate applies defaults and validates the configuration.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Host == nil {
		return errors.New("config: No Host block was present")
	}
	if cfg.Client == nil {
		return errors.New("config: No Client block was present")
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}

	cfg.Host.applyDefaults()
	cfg.Client.applyDefaults()
	cfg.Logging.applyDefaults()
	cfg.Client.CertificatesDir = expandHome(cfg.Client.CertificatesDir)

	if err := cfg.Host.validate(); err != nil {
		return err
	}
	if err := cfg.Client.validate(); err != nil {
		return err
	}
	return cfg.Logging.validate()
}

// ClientConfig returns the facade configuration and options.
func (cfg *Config) ClientConfig() (gamestream.Config, []func(*gamestream.ClientOptions)) {
	opts := []func(*gamestream.ClientOptions){gamestream.WithDeviceName(cfg.Client.DeviceName)}
	if cfg.Client.UniqueID != "" {
		opts = append(opts, gamestream.WithUniqueID(cfg.Client.UniqueID))
	}
	return gamestream.Config{
		Host:            cfg.Host.Address,
		CertificatesDir: cfg.Client.CertificatesDir,
		HTTPPort:        cfg.Host.HTTPPort,
		HTTPSPort:       cfg.Host.HTTPSPort,
		Timeout:         time.Duration(cfg.Host.TimeoutSec) * time.Second,
	}, opts
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("No nil buffer as config file")
	}

	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
