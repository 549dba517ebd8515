package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/model"
)

var ErrInvalidKey = errors.New("invalid key file")

func GenerateKey() (ed25519.PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	return key, err
}

// SaveKey writes key base58 encoded, readable by the owner only.
func SaveKey(path string, key ed25519.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(base58.Encode(key)+"\n"), 0o600)
}

func LoadKey(path string) (ed25519.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	raw, err := base58.Decode(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidKey, "%s: %v", path, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.Wrapf(ErrInvalidKey, "%s: %d bytes", path, len(raw))
	}

	return ed25519.PrivateKey(raw), nil
}

func PublicAddress(key ed25519.PrivateKey) model.Address {
	var addr model.Address
	copy(addr[:], key.Public().(ed25519.PublicKey))
	return addr
}
