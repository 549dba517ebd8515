package model

import (
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const AddressLen = 32

// Address identifies an account, a caller or a component. Its text form is
// base58.
type Address [AddressLen]byte

var ErrInvalidAddress = errors.New("invalid address")

func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := base58.Decode(s)
	if err != nil {
		return a, errors.Wrapf(ErrInvalidAddress, "%q: %v", s, err)
	}
	if len(b) != AddressLen {
		return a, errors.Wrapf(ErrInvalidAddress, "%q decodes to %d bytes", s, len(b))
	}
	copy(a[:], b)

	return a, nil
}

func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}

	return a
}

func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLen {
		return a, errors.Wrapf(ErrInvalidAddress, "got %d bytes", len(b))
	}
	copy(a[:], b)

	return a, nil
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed

	return nil
}
