// Package config loads the beacond daemon configuration.
//
// Configuration is a YAML document. Values not present in the file keep
// their defaults, and ${VAR} references are replaced with the value of the
// environment variable before parsing.
//
//	listen:
//	  address: ":7420"
//	  websocket: ":7422"
//	tls:
//	  cert: /etc/beaconrelay/relay.crt
//	  key: /etc/beaconrelay/relay.key
//	log:
//	  level: info
//	  event_log: /var/log/beaconrelay/events.blog
//	scanner:
//	  interface: eth0
//	  ranging_interval: 1s
//	  exit_timeout: 30s
//	capabilities:
//	  location_services: true
//	  ranging: true
//	  monitoring: true
//	authority:
//	  state_file: /var/lib/beaconrelay/authorization.json
//	  policy: grant-when-in-use
//	  declared: [when-in-use, always]
//	background:
//	  enabled: true
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/beaconrelay/beaconrelay/pkg/authority"
	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/scanner/mdns"
	"github.com/beaconrelay/beaconrelay/pkg/transport"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the daemon configuration.
type Config struct {
	Listen       ListenConfig           `yaml:"listen"`
	TLS          transport.TLSFiles     `yaml:"tls"`
	Log          LogConfig              `yaml:"log"`
	Scanner      ScannerConfig          `yaml:"scanner"`
	Capabilities authority.Capabilities `yaml:"capabilities"`
	Authority    AuthorityConfig        `yaml:"authority"`
	Background   BackgroundConfig       `yaml:"background"`
}

// ListenConfig holds the listener addresses. An empty address disables
// the listener.
type ListenConfig struct {
	Address       string `yaml:"address"`
	WebSocket     string `yaml:"websocket"`
	WebSocketPath string `yaml:"websocket_path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is one of empty, info, warning, verbose.
	Level string `yaml:"level"`

	// EventLog is the CBOR event file. Empty disables event capture.
	EventLog string `yaml:"event_log"`
}

// ScannerConfig configures the mDNS scanning service.
type ScannerConfig struct {
	ServiceType     string        `yaml:"service_type"`
	Interface       string        `yaml:"interface"`
	RangingInterval time.Duration `yaml:"ranging_interval"`
	ExitTimeout     time.Duration `yaml:"exit_timeout"`
}

// AuthorityConfig configures the permission authority.
type AuthorityConfig struct {
	// StateFile persists the decision. Empty keeps it in memory.
	StateFile string `yaml:"state_file"`

	// Policy answers prompts: grant-always, grant-when-in-use, deny or
	// manual.
	Policy string `yaml:"policy"`

	// Declared lists the permission levels with a usage justification.
	Declared []string `yaml:"declared"`

	// Initial is the decision used before anything was persisted.
	Initial string `yaml:"initial"`

	// PromptDelay is how long the policy takes to answer.
	PromptDelay time.Duration `yaml:"prompt_delay"`
}

// BackgroundConfig controls background monitoring delivery.
type BackgroundConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Address:       fmt.Sprintf(":%d", transport.DefaultPort),
			WebSocketPath: transport.DefaultWebSocketPath,
		},
		Log: LogConfig{
			Level: model.LogInfo.String(),
		},
		Scanner: ScannerConfig{
			ServiceType:     mdns.ServiceType,
			RangingInterval: mdns.DefaultRangingInterval,
			ExitTimeout:     mdns.DefaultExitTimeout,
		},
		Capabilities: authority.AllCapabilities(),
		Authority: AuthorityConfig{
			Policy:   string(authority.PolicyGrantWhenInUse),
			Declared: []string{model.PermissionWhenInUse.String(), model.PermissionAlways.String()},
			Initial:  model.AuthorizationUndetermined.String(),
		},
		Background: BackgroundConfig{Enabled: true},
	}
}

// Load reads the file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates the
// result. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(expandEnvVars(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the variable's value. Unset
// variables expand to the empty string.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Listen.Address == "" && c.Listen.WebSocket == "" {
		return fmt.Errorf("%w: listen.address or listen.websocket is required", ErrInvalid)
	}
	if c.Listen.WebSocket != "" && !strings.HasPrefix(c.Listen.WebSocketPath, "/") {
		return fmt.Errorf("%w: listen.websocket_path %q must start with /", ErrInvalid, c.Listen.WebSocketPath)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("%w: tls.cert and tls.key must be set together", ErrInvalid)
	}

	if _, ok := model.ParseLogLevel(c.Log.Level); !ok {
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}

	if err := validateServiceType(c.Scanner.ServiceType); err != nil {
		return err
	}
	if c.Scanner.RangingInterval <= 0 {
		return fmt.Errorf("%w: scanner.ranging_interval must be positive", ErrInvalid)
	}
	if c.Scanner.ExitTimeout <= 0 {
		return fmt.Errorf("%w: scanner.exit_timeout must be positive", ErrInvalid)
	}

	if _, err := c.Authority.resolve(); err != nil {
		return err
	}
	return nil
}

func validateServiceType(s string) error {
	if !strings.HasPrefix(s, "_") || !(strings.HasSuffix(s, "._udp") || strings.HasSuffix(s, "._tcp")) {
		return fmt.Errorf("%w: scanner.service_type %q must look like _name._udp", ErrInvalid, s)
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() model.LogLevel {
	level, _ := model.ParseLogLevel(c.Log.Level)
	return level
}

// MDNS returns the scanner configuration for the mDNS service.
func (s ScannerConfig) MDNS() mdns.ScannerConfig {
	return mdns.ScannerConfig{
		ServiceType:     s.ServiceType,
		Interface:       s.Interface,
		RangingInterval: s.RangingInterval,
		ExitTimeout:     s.ExitTimeout,
	}
}

// Options returns the authority configuration without a Logger. Store is
// nil when StateFile is empty.
func (a AuthorityConfig) Options() (authority.Config, error) {
	return a.resolve()
}

func (a AuthorityConfig) resolve() (authority.Config, error) {
	policy, err := authority.ParsePolicy(a.Policy)
	if err != nil {
		return authority.Config{}, fmt.Errorf("%w: authority.policy: %v", ErrInvalid, err)
	}

	initial := model.AuthorizationUndetermined
	if a.Initial != "" {
		st, ok := model.ParseAuthorizationStatus(a.Initial)
		if !ok {
			return authority.Config{}, fmt.Errorf("%w: authority.initial %q", ErrInvalid, a.Initial)
		}
		initial = st
	}

	declared := make([]model.Permission, 0, len(a.Declared))
	for _, name := range a.Declared {
		p, ok := model.ParsePermission(name)
		if !ok {
			return authority.Config{}, fmt.Errorf("%w: authority.declared %q", ErrInvalid, name)
		}
		declared = append(declared, p)
	}

	if a.PromptDelay < 0 {
		return authority.Config{}, fmt.Errorf("%w: authority.prompt_delay must not be negative", ErrInvalid)
	}

	cfg := authority.Config{
		Policy:      policy,
		Declared:    declared,
		Initial:     initial,
		PromptDelay: a.PromptDelay,
	}
	if a.StateFile != "" {
		cfg.Store = authority.NewStateStore(a.StateFile)
	}
	return cfg, nil
}
