package loader

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// unpackAt decodes i from p at offset at, failing if i would run past the buffer.
func unpackAt(p []byte, i interface{}, at uint64, order binary.ByteOrder) error {
	size, err := struc.Sizeof(i)
	if err != nil {
		return err
	}
	if at > uint64(len(p)) || uint64(size) > uint64(len(p))-at {
		return errors.Errorf("%d bytes at 0x%x run past end of %d-byte buffer", size, at, len(p))
	}
	return struc.UnpackWithOrder(bytes.NewReader(p[at:at+uint64(size)]), i, order)
}

// cstring reads a NUL-terminated string from a string table.
func cstring(tab []byte, off uint32) (string, bool) {
	if uint64(off) >= uint64(len(tab)) {
		return "", off == 0
	}
	s := tab[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s), true
}

// gap is end-start, or 0 when start is already past end.
func gap(start, end uint64) uint64 {
	if end < start {
		return 0
	}
	return end - start
}
