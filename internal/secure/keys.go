package secure

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"Go2NetShield/internal/config"
)

// KeySize is the length in bytes of the shared AEAD key.
const KeySize = 32

// File names written by GenerateKeyMaterial.
const (
	SymmetricKeyFile = "aes_secret.key"
	PrivateKeyFile   = "sensor_private.pem"
	PublicKeyFile    = "sensor_public.pem"
)

// LoadSymmetricKey reads a raw 32-byte key.
func LoadSymmetricKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read symmetric key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("symmetric key %s has %d bytes, want %d", path, len(key), KeySize)
	}
	return key, nil
}

// LoadPrivateKey reads a PEM encoded PKCS#8 RSA private key.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Older tooling writes PKCS#1.
		if key, err1 := x509.ParsePKCS1PrivateKey(block.Bytes); err1 == nil {
			return key, nil
		}
		return nil, fmt.Errorf("failed to parse private key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key %s is not an RSA key", path)
	}
	return key, nil
}

// LoadPublicKey reads a PEM encoded PKIX RSA public key.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key %s is not an RSA key", path)
	}
	return key, nil
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	return block, nil
}

// LoadSealer builds the sensor side of the envelope. When the public key file
// exists it must match the private key.
func LoadSealer(cfg config.SecurityConfig) (*Sealer, error) {
	key, err := LoadSymmetricKey(cfg.SymmetricKey)
	if err != nil {
		return nil, err
	}
	priv, err := LoadPrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		return nil, err
	}
	if cfg.PublicKeyPath != "" {
		pub, err := LoadPublicKey(cfg.PublicKeyPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		case !priv.PublicKey.Equal(pub):
			return nil, fmt.Errorf("public key %s does not match private key %s", cfg.PublicKeyPath, cfg.PrivateKeyPath)
		}
	}
	return NewSealer(cfg.Suite, key, priv)
}

// LoadOpener builds the analyzer side of the envelope.
func LoadOpener(cfg config.SecurityConfig) (*Opener, error) {
	key, err := LoadSymmetricKey(cfg.SymmetricKey)
	if err != nil {
		return nil, err
	}
	pub, err := LoadPublicKey(cfg.PublicKeyPath)
	if err != nil {
		return nil, err
	}
	return NewOpener(cfg.Suite, key, pub)
}

// GenerateKeyMaterial writes a fresh symmetric key and RSA key pair into dir.
// Existing files are not overwritten.
func GenerateKeyMaterial(dir string, bits int) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	secret := make([]byte, KeySize)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("failed to generate symmetric key: %w", err)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to encode public key: %w", err)
	}

	files := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{SymmetricKeyFile, secret, 0o600},
		{PrivateKeyFile, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600},
		{PublicKeyFile, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o644},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("refusing to overwrite %s", path)
		}
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, f.mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	return nil
}
