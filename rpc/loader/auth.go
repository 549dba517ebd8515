package loader

import (
	"crypto/ed25519"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/model"
)

var (
	ErrUnauthenticated = errors.New("request signature invalid")
	ErrReplayed        = errors.New("request id already used")
	ErrExpired         = errors.New("request outside accepted time window")
	ErrFaucetDisabled  = errors.New("faucet disabled")
	ErrFaucetLimit     = errors.New("airdrop exceeds faucet limit")
)

// DefaultMaxAge bounds how far IssuedAt may be from the server clock.
const DefaultMaxAge = 2 * time.Minute

// Auth identifies the caller of a state changing request. Signature covers
// the method name and the whole request with Signature left empty.
type Auth struct {
	Signer    model.Address
	RequestID uuid.UUID
	IssuedAt  int64 // unix nanoseconds
	Signature []byte
}

// Signed is implemented by every request that carries Auth.
type Signed interface {
	GetAuth() *Auth
	normalize()
}

// Sign fills in the Auth section of args for the holder of key.
func Sign(method string, args Signed, key ed25519.PrivateKey) error {
	return signAt(method, args, key, time.Now())
}

func signAt(method string, args Signed, key ed25519.PrivateKey, now time.Time) error {
	args.normalize()

	auth := args.GetAuth()
	signer, err := model.AddressFromBytes(key.Public().(ed25519.PublicKey))
	if err != nil {
		return err
	}
	auth.Signer = signer
	auth.RequestID = uuid.New()
	auth.IssuedAt = now.UnixNano()

	msg, err := signingBytes(method, args)
	if err != nil {
		return err
	}
	auth.Signature = ed25519.Sign(key, msg)

	return nil
}

// Verify checks the signature on args and returns the signer.
func Verify(method string, args Signed) (model.Address, error) {
	args.normalize()

	auth := args.GetAuth()
	if len(auth.Signature) != ed25519.SignatureSize {
		return model.Address{}, errors.Wrap(ErrUnauthenticated, "missing signature")
	}

	msg, err := signingBytes(method, args)
	if err != nil {
		return model.Address{}, err
	}
	if !ed25519.Verify(auth.Signer[:], msg, auth.Signature) {
		return model.Address{}, errors.Wrapf(ErrUnauthenticated, "signer %s", auth.Signer)
	}

	return auth.Signer, nil
}

// CheckFresh rejects requests issued more than maxAge away from now in
// either direction. Request ids only need to be remembered for that long.
func CheckFresh(auth *Auth, now time.Time, maxAge time.Duration) error {
	age := now.Sub(time.Unix(0, auth.IssuedAt))
	if age > maxAge || age < -maxAge {
		return errors.Wrapf(ErrExpired, "issued %s from server time, limit %s", age, maxAge)
	}

	return nil
}

func signingBytes(method string, args Signed) ([]byte, error) {
	auth := args.GetAuth()
	sig := auth.Signature
	auth.Signature = nil
	defer func() { auth.Signature = sig }()

	body, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	return append([]byte(ServiceName+"."+method+"\n"), body...), nil
}
