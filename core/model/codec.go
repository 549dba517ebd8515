package model

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var (
	ErrTypeMismatch = errors.New("account type tag mismatch")
	ErrTruncated    = errors.New("account data truncated")
)

// Record is a value stored in account data behind a type tag.
type Record interface {
	Tag() byte
	MarshalBinary() ([]byte, error)
}

func (h *ChunkHolder) Tag() byte {
	return ChunkHolderTag
}

// MarshalBinary encodes h without its type tag:
// owner(32) | count(u32 LE) | { index(1) | len(u32 LE) | data }...
func (h *ChunkHolder) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, h.Space()-TagLen)
	b = append(b, h.Owner[:]...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(h.Chunks)))
	for _, c := range h.Chunks {
		b = append(b, c.Index)
		b = binary.LittleEndian.AppendUint32(b, uint32(len(c.Data)))
		b = append(b, c.Data...)
	}

	return b, nil
}

// Encode returns the tag followed by the record body.
func Encode(r Record) ([]byte, error) {
	body, err := r.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return append([]byte{r.Tag()}, body...), nil
}

// CheckTag fails with ErrTypeMismatch unless data starts with tag.
func CheckTag(data []byte, tag byte) error {
	if len(data) < TagLen {
		return errors.Wrap(ErrTypeMismatch, "account has no type tag")
	}
	if data[0] != tag {
		return errors.Wrapf(ErrTypeMismatch, "expected tag %d, found %d", tag, data[0])
	}

	return nil
}

// ReadOwner returns the 32 bytes following the type tag.
func ReadOwner(data []byte) (Address, error) {
	if len(data) < TagLen+AddressLen {
		return Address{}, errors.Wrapf(ErrTruncated, "%d bytes is too short to hold an owner", len(data))
	}

	return AddressFromBytes(data[TagLen : TagLen+AddressLen])
}

// DecodeChunkHolder checks the tag before reading anything else. Bytes past
// the encoded value are ignored.
func DecodeChunkHolder(data []byte) (*ChunkHolder, error) {
	if err := CheckTag(data, ChunkHolderTag); err != nil {
		return nil, err
	}

	r := reader{b: data[TagLen:]}
	var h ChunkHolder

	owner, err := r.next(AddressLen)
	if err != nil {
		return nil, err
	}
	copy(h.Owner[:], owner)

	count, err := r.uint32()
	if err != nil {
		return nil, err
	}
	// every chunk takes at least one index byte plus its length prefix
	if int(count) > r.remaining()/(1+lenPrefix) {
		return nil, errors.Wrapf(ErrTruncated, "chunk count %d exceeds account data", count)
	}

	h.Chunks = make([]Chunk, 0, count)
	for i := uint32(0); i < count; i++ {
		index, err := r.next(1)
		if err != nil {
			return nil, err
		}
		n, err := r.uint32()
		if err != nil {
			return nil, err
		}
		data, err := r.next(int(n))
		if err != nil {
			return nil, err
		}
		h.Chunks = append(h.Chunks, Chunk{
			Index: index[0],
			Data:  append([]byte(nil), data...),
		})
	}

	return &h, nil
}

type reader struct {
	b   []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.b) - r.off
}

func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, errors.Wrapf(ErrTruncated, "need %d bytes at offset %d, have %d", n, r.off, r.remaining())
	}
	b := r.b[r.off : r.off+n]
	r.off += n

	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.next(lenPrefix)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}
