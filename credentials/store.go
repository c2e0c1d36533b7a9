// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package credentials stages TLS material received over the control
// plane into temporary files and builds client TLS configurations
// from it. The staging directory is removed wholesale on shutdown.
package credentials

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	errLoadCerts  = errors.New("failed to load certificates")
	errAppendCA   = errors.New("failed to append root ca tls.Config")
	errStoreEmpty = errors.New("credential store has been cleaned up")
)

// Store is a temp-dir backed credential staging area. One per process.
type Store struct {
	mu     sync.Mutex
	dir    string
	seq    int
	logger *slog.Logger
}

// NewStore creates the staging directory.
func NewStore(logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir, err := os.MkdirTemp("", "mqtt-agent-creds-")
	if err != nil {
		return nil, fmt.Errorf("failed to create credential staging dir: %w", err)
	}
	logger.Debug("credential store created", slog.String("dir", dir))
	return &Store{dir: dir, logger: logger}, nil
}

// Stage writes the PEM material to a fresh file and returns its path.
func (s *Store) Stage(name string, pem []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir == "" {
		return "", errStoreEmpty
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s-%d.pem", name, s.seq))
	s.seq++

	if err := os.WriteFile(path, pem, 0o600); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", name, err)
	}
	return path, nil
}

// ClientTLSConfig stages the given PEM material and builds a client
// side TLS configuration from the staged files.
func (s *Store) ClientTLSConfig(ca, cert, key []byte) (*tls.Config, error) {
	caFile, err := s.Stage("ca", ca)
	if err != nil {
		return nil, err
	}
	certFile, err := s.Stage("cert", cert)
	if err != nil {
		return nil, err
	}
	keyFile, err := s.Stage("key", key)
	if err != nil {
		return nil, err
	}

	certificate, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Join(errLoadCerts, err)
	}

	rootCA, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}

	config := &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		},
		Certificates: []tls.Certificate{certificate},
	}

	config.RootCAs = x509.NewCertPool()
	if !config.RootCAs.AppendCertsFromPEM(rootCA) {
		return nil, errAppendCA
	}

	return config, nil
}

// CleanUp removes every staged file. The store is unusable afterwards.
func (s *Store) CleanUp() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir == "" {
		return nil
	}
	dir := s.dir
	s.dir = ""

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove credential staging dir: %w", err)
	}
	s.logger.Debug("credential store cleaned up", slog.String("dir", dir))
	return nil
}
