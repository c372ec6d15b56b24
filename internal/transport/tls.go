package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// CertConfig names the PEM material needed to stand up an mTLS listener:
// the server's own certificate/key pair and a CA bundle used to verify
// client certificates.
type CertConfig struct {
	CertFile   string
	KeyFile    string
	ClientCA   string
	MinVersion uint16
}

// BuildServerTLSConfig loads cfg's certificate material and returns a
// tls.Config that requires and verifies a client certificate against the
// configured CA pool — every connection must present a trusted client
// certificate before the protocol layer ever sees a byte.
func BuildServerTLSConfig(cfg CertConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("transport: load server keypair: %w", err)
	}

	caPEM, err := os.ReadFile(cfg.ClientCA)
	if err != nil {
		return nil, fmt.Errorf("transport: read client CA bundle: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("transport: no certificates found in %s", cfg.ClientCA)
	}

	minVersion := cfg.MinVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   minVersion,
	}, nil
}
