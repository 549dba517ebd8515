package arena

// Buffer is a growable byte region whose length is always set explicitly.
// Resizing keeps every byte below min(old, new) in place.
type Buffer struct {
	b []byte
}

func New(size int) *Buffer {
	return &Buffer{b: make([]byte, size)}
}

// Wrap takes ownership of b.
func Wrap(b []byte) *Buffer {
	return &Buffer{b: b}
}

func (a *Buffer) Len() int {
	return len(a.b)
}

func (a *Buffer) Bytes() []byte {
	return a.b
}

// Resize sets the buffer length to size. Growth is zero filled, shrinking
// truncates.
func (a *Buffer) Resize(size int) {
	if size < 0 {
		size = 0
	}

	switch {
	case size <= len(a.b):
		a.b = a.b[:size]
	case size <= cap(a.b):
		old := len(a.b)
		a.b = a.b[:size]
		clear(a.b[old:])
	default:
		grown := make([]byte, size)
		copy(grown, a.b)
		a.b = grown
	}
}
