package instrprof

import (
	"fmt"

	"github.com/dennwc/varint"

	"github.com/profdata-go/profdata/pkg/profdata/format"
)

// readNames parses a names section, a sequence of length-prefixed
// strings, into the symbol table. Both binary containers share this
// encoding. The section is extracted and bounds-checked by the caller,
// so an entry running past its end is a malformed section, not a short
// buffer.
func readNames(sec []byte, symtab *Symtab) error {
	for off := 0; off < len(sec); {
		l, n := varint.Uvarint(sec[off:])
		if n <= 0 {
			return fmt.Errorf("name length at offset %d: %w", off, format.ErrMalformed)
		}
		off += n
		if l == 0 {
			return fmt.Errorf("empty name at offset %d: %w", off, format.ErrMalformed)
		}
		if l > uint64(len(sec)-off) {
			return fmt.Errorf("name of %d bytes at offset %d: %w", l, off, format.ErrMalformed)
		}
		symtab.Add(string(sec[off : off+int(l)]))
		off += int(l)
	}
	return nil
}
