package instrprof

import "sort"

// Symtab maps name hashes to function names. Decoders fill it from the
// names sections; value-profile data resolves call targets through it.
type Symtab struct {
	names map[uint64]string
}

func NewSymtab() *Symtab {
	return &Symtab{names: make(map[uint64]string)}
}

// Add records the name under its hash and returns the hash.
func (s *Symtab) Add(name string) uint64 {
	h := HashName(name)
	s.names[h] = name
	return h
}

// Name resolves a hash to the function name it was recorded under.
func (s *Symtab) Name(hash uint64) (string, bool) {
	name, ok := s.names[hash]
	return name, ok
}

func (s *Symtab) Len() int { return len(s.names) }

// Names returns all known names in lexical order.
func (s *Symtab) Names() []string {
	names := make([]string, 0, len(s.names))
	for _, n := range s.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Symtab) Merge(other *Symtab) {
	if other == nil {
		return
	}
	for h, n := range other.names {
		s.names[h] = n
	}
}
