package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

const (
	// ALPNProtocol is negotiated on TLS connections to the relay.
	ALPNProtocol = "beaconrelay/1"

	// DefaultPort is the default TCP port of the relay.
	DefaultPort = 7420

	// DefaultWebSocketPath is the HTTP path upgraded to WebSocket.
	DefaultWebSocketPath = "/relay"
)

// TLSFiles names PEM files for a TLS endpoint.
type TLSFiles struct {
	// CertFile and KeyFile hold this endpoint's certificate.
	CertFile string `yaml:"cert"`
	KeyFile  string `yaml:"key"`

	// CAFile, when set, holds the CAs trusted for the peer.
	CAFile string `yaml:"ca"`
}

// Enabled reports whether a certificate is configured.
func (f TLSFiles) Enabled() bool {
	return f.CertFile != "" && f.KeyFile != ""
}

// ServerTLSConfig loads a TLS 1.3 server configuration. Clients presenting
// a certificate signed by CAFile are verified; others are still accepted.
func ServerTLSConfig(files TLSFiles) (*tls.Config, error) {
	if !files.Enabled() {
		return nil, errors.New("tls: cert and key are required")
	}
	cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("tls: load key pair: %w", err)
	}

	conf := &tls.Config{
		MinVersion:       tls.VersionTLS13,
		Certificates:     []tls.Certificate{cert},
		NextProtos:       []string{ALPNProtocol, "http/1.1"},
		CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP256},
	}
	if files.CAFile != "" {
		pool, err := loadPool(files.CAFile)
		if err != nil {
			return nil, err
		}
		conf.ClientCAs = pool
		conf.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return conf, nil
}

// ClientTLSConfig builds a TLS 1.3 client configuration. An empty CAFile
// uses the system roots.
func ClientTLSConfig(files TLSFiles, serverName string, insecure bool) (*tls.Config, error) {
	conf := &tls.Config{
		MinVersion:         tls.VersionTLS13,
		ServerName:         serverName,
		NextProtos:         []string{ALPNProtocol},
		InsecureSkipVerify: insecure,
	}
	if files.CAFile != "" {
		pool, err := loadPool(files.CAFile)
		if err != nil {
			return nil, err
		}
		conf.RootCAs = pool
	}
	if files.Enabled() {
		cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tls: load key pair: %w", err)
		}
		conf.Certificates = []tls.Certificate{cert}
	}
	return conf, nil
}

// VerifyConnection checks the negotiated version and protocol of a TLS
// connection to the relay.
func VerifyConnection(state tls.ConnectionState) error {
	if state.Version != tls.VersionTLS13 {
		return fmt.Errorf("tls: version %#04x, want TLS 1.3", state.Version)
	}
	if state.NegotiatedProtocol != ALPNProtocol {
		return fmt.Errorf("tls: negotiated protocol %q, want %q", state.NegotiatedProtocol, ALPNProtocol)
	}
	return nil
}

func loadPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tls: read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("tls: no certificates in %s", path)
	}
	return pool, nil
}
