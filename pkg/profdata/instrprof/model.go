// Package instrprof decodes and encodes instrumented profiles: the
// indexed and raw binary containers and the text format.
package instrprof

import (
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/profdata-go/profdata/pkg/profdata/format"
)

// Header flag bits shared by the instrumented containers.
const (
	FlagIR               = 1 << 0
	FlagContextSensitive = 1 << 1
	FlagEntryFirst       = 1 << 2

	// FlagCompressedNames is a storage flag of the indexed container.
	// Decoders strip it from Profile.Flags.
	FlagCompressedNames = 1 << 3
)

// ValueKind enumerates the value-profile kinds.
type ValueKind uint32

const (
	ValueKindIndirectCall ValueKind = 1
	ValueKindMemOpSize    ValueKind = 2
)

func (k ValueKind) Valid() bool {
	return k == ValueKindIndirectCall || k == ValueKindMemOpSize
}

func (k ValueKind) String() string {
	switch k {
	case ValueKindIndirectCall:
		return "indirect-call-target"
	case ValueKindMemOpSize:
		return "mem-op-size"
	default:
		return fmt.Sprintf("value-kind(%d)", uint32(k))
	}
}

// ValueEntry is one observed (value, count) pair at a site. For
// indirect-call sites the value is the name hash of the callee.
type ValueEntry struct {
	Value uint64
	Count uint64
}

// ValueSite holds the entries observed at one instrumentation site.
type ValueSite struct {
	Entries []ValueEntry
}

// ValueProfData groups the value-profile sites of a record by kind.
type ValueProfData map[ValueKind][]ValueSite

// Key is the identity under which records are stored and merged.
type Key struct {
	NameHash uint64
	FuncHash uint64
}

// Record is the profile of a single function. FuncHash is the
// structural hash of the instrumented function body; two records with
// equal identity but diverging counter layouts cannot be merged.
type Record struct {
	Name     string
	NameHash uint64
	FuncHash uint64
	Counters []uint64
	Values   ValueProfData
}

// Identity returns the record's merge key.
func (r *Record) Identity() Key { return Key{NameHash: r.NameHash, FuncHash: r.FuncHash} }

// FunctionCount returns the entry counter, the number of times the
// function was entered.
func (r *Record) FunctionCount() uint64 {
	if len(r.Counters) == 0 {
		return 0
	}
	return r.Counters[0]
}

// DisplayName is the function name, or the hex name hash when the
// profile carries no symbols for it.
func (r *Record) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("0x%x", r.NameHash)
}

func (r *Record) clone() *Record {
	c := *r
	c.Counters = append([]uint64(nil), r.Counters...)
	if r.Values != nil {
		c.Values = make(ValueProfData, len(r.Values))
		for kind, sites := range r.Values {
			cs := make([]ValueSite, len(sites))
			for i, s := range sites {
				cs[i] = ValueSite{Entries: append([]ValueEntry(nil), s.Entries...)}
			}
			c.Values[kind] = cs
		}
	}
	return &c
}

func (r *Record) merge(other *Record) error {
	if len(r.Counters) != len(other.Counters) {
		return fmt.Errorf("function %s: counter count mismatch %d != %d: %w",
			r.DisplayName(), len(r.Counters), len(other.Counters), format.ErrMalformed)
	}
	for i, c := range other.Counters {
		r.Counters[i] = saturatingAdd(r.Counters[i], c)
	}
	if r.Name == "" {
		r.Name = other.Name
	}
	if len(other.Values) == 0 {
		return nil
	}
	if r.Values == nil {
		r.Values = make(ValueProfData, len(other.Values))
	}
	for kind, sites := range other.Values {
		merged, err := mergeSites(r.Values[kind], sites)
		if err != nil {
			return fmt.Errorf("function %s, %s: %w", r.DisplayName(), kind, err)
		}
		r.Values[kind] = merged
	}
	return nil
}

func mergeSites(dst, src []ValueSite) ([]ValueSite, error) {
	if len(dst) == 0 {
		cs := make([]ValueSite, len(src))
		for i, s := range src {
			cs[i] = ValueSite{Entries: append([]ValueEntry(nil), s.Entries...)}
		}
		return cs, nil
	}
	if len(dst) != len(src) {
		return nil, fmt.Errorf("site count mismatch %d != %d: %w", len(dst), len(src), format.ErrMalformed)
	}
	for i := range dst {
		counts := make(map[uint64]uint64, len(dst[i].Entries)+len(src[i].Entries))
		for _, e := range dst[i].Entries {
			counts[e.Value] = saturatingAdd(counts[e.Value], e.Count)
		}
		for _, e := range src[i].Entries {
			counts[e.Value] = saturatingAdd(counts[e.Value], e.Count)
		}
		entries := make([]ValueEntry, 0, len(counts))
		for v, c := range counts {
			entries = append(entries, ValueEntry{Value: v, Count: c})
		}
		// Hottest targets first, value breaks ties.
		sort.Slice(entries, func(a, b int) bool {
			if entries[a].Count != entries[b].Count {
				return entries[a].Count > entries[b].Count
			}
			return entries[a].Value < entries[b].Value
		})
		dst[i] = ValueSite{Entries: entries}
	}
	return dst, nil
}

func saturatingAdd(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return math.MaxUint64
}

// HashName returns the stable identity hash for a function name.
func HashName(name string) uint64 { return xxhash.Sum64String(name) }

// Profile is a decoded instrumented profile.
type Profile struct {
	Version uint32
	Flags   uint32
	Records map[Key]*Record
	Symtab  *Symtab
	// BinaryIDs identifies the binaries a raw profile was collected
	// from. Only the raw container carries them.
	BinaryIDs [][]byte
	// Warnings collects non-fatal inconsistencies observed during
	// decoding.
	Warnings []format.IntegrityWarning
}

func NewProfile() *Profile {
	return &Profile{
		Records: make(map[Key]*Record),
		Symtab:  NewSymtab(),
	}
}

func (p *Profile) IR() bool               { return p.Flags&FlagIR != 0 }
func (p *Profile) ContextSensitive() bool { return p.Flags&FlagContextSensitive != 0 }
func (p *Profile) EntryFirst() bool       { return p.Flags&FlagEntryFirst != 0 }

// Add inserts a record. A record named by an empty string keeps the
// hash it carries; otherwise a zero NameHash is filled in from the name.
func (p *Profile) Add(r *Record) error {
	if r.NameHash == 0 && r.Name != "" {
		r.NameHash = HashName(r.Name)
	}
	k := r.Identity()
	if _, ok := p.Records[k]; ok {
		return fmt.Errorf("duplicate record for %s, hash %#x: %w", r.DisplayName(), r.FuncHash, format.ErrMalformed)
	}
	p.Records[k] = r
	if r.Name != "" {
		p.Symtab.Add(r.Name)
	}
	return nil
}

func (p *Profile) warn(function, reason string) {
	p.Warnings = append(p.Warnings, format.IntegrityWarning{Function: function, Reason: reason})
}

// SortedRecords returns the records ordered by name for rendering and
// encoding.
func (p *Profile) SortedRecords() []*Record {
	recs := make([]*Record, 0, len(p.Records))
	for _, r := range p.Records {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Name != recs[j].Name {
			return recs[i].Name < recs[j].Name
		}
		if recs[i].NameHash != recs[j].NameHash {
			return recs[i].NameHash < recs[j].NameHash
		}
		return recs[i].FuncHash < recs[j].FuncHash
	})
	return recs
}

// Merge folds other into p. Both profiles must agree on the
// instrumentation level and counter order; the newer version wins.
func (p *Profile) Merge(other *Profile) error {
	if (p.Flags^other.Flags)&FlagIR != 0 {
		return fmt.Errorf("cannot merge IR and front-end instrumented profiles: %w", format.ErrMalformed)
	}
	if (p.Flags^other.Flags)&FlagEntryFirst != 0 {
		return fmt.Errorf("cannot merge profiles with different counter orders: %w", format.ErrMalformed)
	}
	p.Flags |= other.Flags & FlagContextSensitive
	if other.Version > p.Version {
		p.Version = other.Version
	}
	for k, r := range other.Records {
		cur, ok := p.Records[k]
		if !ok {
			p.Records[k] = r.clone()
			continue
		}
		if err := cur.merge(r); err != nil {
			return err
		}
	}
	p.Symtab.Merge(other.Symtab)
	p.BinaryIDs = mergeBinaryIDs(p.BinaryIDs, other.BinaryIDs)
	p.Warnings = append(p.Warnings, other.Warnings...)
	return nil
}

func mergeBinaryIDs(dst, src [][]byte) [][]byte {
	if len(src) == 0 {
		return dst
	}
	seen := make(map[string]struct{}, len(dst))
	for _, id := range dst {
		seen[string(id)] = struct{}{}
	}
	for _, id := range src {
		if _, ok := seen[string(id)]; ok {
			continue
		}
		seen[string(id)] = struct{}{}
		dst = append(dst, append([]byte(nil), id...))
	}
	return dst
}
