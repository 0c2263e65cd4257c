// Package signer produces the detached ECDSA signature over a target image.
package signer

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/lorawan-fota/fragvec/pkg/tools"
)

// ToolName identifies the signer in errors.
const ToolName = "signer"

// Signer kinds accepted by New.
const (
	KindECDSA   = "ecdsa"
	KindOpenSSL = "openssl"
)

// Options selects and configures a signer.
type Options struct {
	Kind    string
	KeyPath string
	// OpenSSLPath is the openssl binary used by KindOpenSSL.
	OpenSSLPath string
	Runner      tools.Runner
}

// New returns the signer described by opts.
func New(opts Options) (bundle.Signer, error) {
	switch opts.Kind {
	case KindECDSA, "":
		return LoadECDSA(opts.KeyPath)
	case KindOpenSSL:
		if opts.Runner == nil {
			return nil, errors.New("openssl signer requires a runner")
		}
		path := opts.OpenSSLPath
		if path == "" {
			path = "openssl"
		}
		return &OpenSSL{Runner: opts.Runner, Binary: path, KeyPath: opts.KeyPath}, nil
	}
	return nil, fmt.Errorf("unknown signer: %q", opts.Kind)
}

// ECDSA signs in process. Signatures are ASN.1 DER over the SHA-256 of the
// file and use RFC 6979 nonces, so the same key and file always yield the
// same bytes.
type ECDSA struct {
	key *ecdsa.PrivateKey
}

// NewECDSA wraps an existing key.
func NewECDSA(key *ecdsa.PrivateKey) *ECDSA {
	return &ECDSA{key: key}
}

// LoadECDSA reads a PEM encoded SEC 1 or PKCS #8 EC private key.
func LoadECDSA(path string) (*ECDSA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Input(path, err)
	}
	key, err := ParseKey(data)
	if err != nil {
		return nil, errors.Input(path, err)
	}
	slog.Debug("signing_key_loaded", "path", path, "curve", key.Curve.Params().Name)
	return &ECDSA{key: key}, nil
}

// ParseKey decodes the first PEM block of data as an EC private key.
func ParseKey(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ek, ok := k.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("PKCS #8 key is %T, not ECDSA", k)
		}
		return ek, nil
	}
	return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
}

func (s *ECDSA) Sign(_ context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Input(path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, errors.Input(path, err)
	}

	// nil rand selects deterministic nonces.
	sig, err := s.key.Sign(nil, h.Sum(nil), crypto.SHA256)
	if err != nil {
		return nil, errors.Tool(ToolName, err)
	}
	return sig, nil
}

// Public returns the verification key.
func (s *ECDSA) Public() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

// OpenSSL shells out to `openssl dgst -sha256 -sign <key> <file>`, which
// writes the DER signature to stdout. OpenSSL uses random nonces, so its
// output differs between runs.
type OpenSSL struct {
	Runner  tools.Runner
	Binary  string
	KeyPath string
}

func (s *OpenSSL) Sign(ctx context.Context, path string) ([]byte, error) {
	if _, err := os.Stat(s.KeyPath); err != nil {
		return nil, errors.Input(s.KeyPath, err)
	}
	argv := []string{s.Binary, "dgst", "-sha256", "-sign", s.KeyPath, path}
	out, err := s.Runner.Run(ctx, ToolName, argv)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.Toolf(ToolName, "empty signature")
	}
	return out, nil
}
