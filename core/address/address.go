// Package address derives deterministic account addresses from seeds.
//
// A derived address is sha256(seeds... || nonce || program || marker) and is
// only valid when it is not a point on the ed25519 curve, so no private key
// can ever sign for it. Nonces are searched from 255 downwards.
package address

import (
	"crypto/sha256"
	"encoding/binary"

	"filippo.io/edwards25519"
	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/model"
)

const (
	MaxSeeds   = 16
	MaxSeedLen = 32

	derivedMarker = "ProgramDerivedAddress"
)

// ChunkHolderSeed is the domain tag for chunk holder records.
var ChunkHolderSeed = []byte("CHUNK_HOLDER")

var (
	ErrMaxSeedLength   = errors.New("seed exceeds maximum length")
	ErrInvalidSeeds    = errors.New("seeds do not derive a valid address")
	ErrNoValidNonce    = errors.New("unable to find a valid nonce")
	ErrAddressMismatch = errors.New("address does not match derived address")
)

// SignerSeeds authorise a component to act for the address they derive.
type SignerSeeds struct {
	Seeds [][]byte
	Nonce uint8
}

// CreateAddress derives the address for seeds and nonce under program.
func CreateAddress(seeds [][]byte, nonce uint8, program model.Address) (model.Address, error) {
	if len(seeds)+1 > MaxSeeds {
		return model.Address{}, errors.Wrapf(ErrMaxSeedLength, "%d seeds", len(seeds))
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return model.Address{}, errors.Wrapf(ErrMaxSeedLength, "seed of %d bytes", len(seed))
		}
		h.Write(seed)
	}
	h.Write([]byte{nonce})
	h.Write(program[:])
	h.Write([]byte(derivedMarker))

	var addr model.Address
	copy(addr[:], h.Sum(nil))

	if isOnCurve(addr) {
		return model.Address{}, ErrInvalidSeeds
	}

	return addr, nil
}

// FindAddress returns the first valid address searching nonces from 255 down.
func FindAddress(seeds [][]byte, program model.Address) (model.Address, uint8, error) {
	for nonce := 255; nonce >= 0; nonce-- {
		addr, err := CreateAddress(seeds, uint8(nonce), program)
		switch {
		case err == nil:
			return addr, uint8(nonce), nil
		case errors.Is(err, ErrInvalidSeeds):
			continue
		default:
			return model.Address{}, 0, err
		}
	}

	return model.Address{}, 0, ErrNoValidNonce
}

// Verify checks that seeds derive addr under program.
func Verify(addr model.Address, seeds SignerSeeds, program model.Address) error {
	derived, err := CreateAddress(seeds.Seeds, seeds.Nonce, program)
	if err != nil {
		return err
	}
	if derived != addr {
		return errors.Wrapf(ErrInvalidSeeds, "seeds derive %s, not %s", derived, addr)
	}

	return nil
}

func ChunkHolderSeeds(owner model.Address, handleID uint32) [][]byte {
	return [][]byte{
		ChunkHolderSeed,
		owner[:],
		binary.LittleEndian.AppendUint32(nil, handleID),
	}
}

// FindChunkHolder derives the record address for (owner, handleID).
func FindChunkHolder(owner model.Address, handleID uint32, program model.Address) (model.Address, uint8, error) {
	return FindAddress(ChunkHolderSeeds(owner, handleID), program)
}

func isOnCurve(addr model.Address) bool {
	_, err := new(edwards25519.Point).SetBytes(addr[:])
	return err == nil
}
