package instrprof

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profdata-go/profdata/pkg/profdata/format"
)

func profileWith(t *testing.T, flags uint32, records ...*Record) *Profile {
	t.Helper()
	p := NewProfile()
	p.Version = format.IndexedVersionMax
	p.Flags = flags
	for _, r := range records {
		require.NoError(t, p.Add(r))
	}
	return p
}

func Test_Merge_records(t *testing.T) {
	a := profileWith(t, FlagIR,
		&Record{Name: "shared", FuncHash: 1, Counters: []uint64{10, 1}},
		&Record{Name: "only_a", FuncHash: 2, Counters: []uint64{5}},
	)
	b := profileWith(t, FlagIR,
		&Record{Name: "shared", FuncHash: 1, Counters: []uint64{32, 7}},
		&Record{Name: "only_b", FuncHash: 3, Counters: []uint64{8}},
	)

	require.NoError(t, a.Merge(b))
	require.Len(t, a.Records, 3)
	assert.Equal(t, []uint64{42, 8}, a.Records[Key{NameHash: HashName("shared"), FuncHash: 1}].Counters)
	assert.Equal(t, []uint64{5}, a.Records[Key{NameHash: HashName("only_a"), FuncHash: 2}].Counters)
	assert.Equal(t, []uint64{8}, a.Records[Key{NameHash: HashName("only_b"), FuncHash: 3}].Counters)

	// Names travel with the records.
	for _, name := range []string{"shared", "only_a", "only_b"} {
		_, ok := a.Symtab.Name(HashName(name))
		assert.True(t, ok, name)
	}
}

func Test_Merge_detachesFromSource(t *testing.T) {
	a := profileWith(t, 0)
	b := profileWith(t, 0,
		&Record{Name: "f", FuncHash: 1, Counters: []uint64{1}},
	)

	require.NoError(t, a.Merge(b))
	b.Records[Key{NameHash: HashName("f"), FuncHash: 1}].Counters[0] = 99
	assert.Equal(t, []uint64{1}, a.Records[Key{NameHash: HashName("f"), FuncHash: 1}].Counters)
}

func Test_Merge_saturates(t *testing.T) {
	a := profileWith(t, 0, &Record{Name: "f", FuncHash: 1, Counters: []uint64{math.MaxUint64 - 1}})
	b := profileWith(t, 0, &Record{Name: "f", FuncHash: 1, Counters: []uint64{7}})

	require.NoError(t, a.Merge(b))
	assert.Equal(t, uint64(math.MaxUint64), a.Records[Key{NameHash: HashName("f"), FuncHash: 1}].Counters[0])
}

func Test_Merge_counterMismatch(t *testing.T) {
	a := profileWith(t, 0, &Record{Name: "f", FuncHash: 1, Counters: []uint64{1, 2}})
	b := profileWith(t, 0, &Record{Name: "f", FuncHash: 1, Counters: []uint64{1}})

	require.ErrorIs(t, a.Merge(b), format.ErrMalformed)
}

func Test_Merge_flagMismatch(t *testing.T) {
	ir := profileWith(t, FlagIR)
	fe := profileWith(t, 0)
	require.ErrorIs(t, ir.Merge(fe), format.ErrMalformed)

	first := profileWith(t, FlagIR|FlagEntryFirst)
	second := profileWith(t, FlagIR)
	require.ErrorIs(t, first.Merge(second), format.ErrMalformed)

	cs := profileWith(t, FlagIR|FlagContextSensitive)
	plain := profileWith(t, FlagIR)
	require.NoError(t, plain.Merge(cs))
	assert.True(t, plain.ContextSensitive())
}

func Test_Merge_values(t *testing.T) {
	a := profileWith(t, 0, &Record{
		Name: "dispatch", FuncHash: 1, Counters: []uint64{1},
		Values: ValueProfData{
			ValueKindIndirectCall: {{Entries: []ValueEntry{{Value: 1, Count: 5}}}},
		},
	})
	b := profileWith(t, 0, &Record{
		Name: "dispatch", FuncHash: 1, Counters: []uint64{1},
		Values: ValueProfData{
			ValueKindIndirectCall: {{Entries: []ValueEntry{
				{Value: 2, Count: 9},
				{Value: 1, Count: 1},
			}}},
		},
	})

	require.NoError(t, a.Merge(b))
	got := a.Records[Key{NameHash: HashName("dispatch"), FuncHash: 1}].Values[ValueKindIndirectCall]
	// Hottest target first after a merge.
	require.Equal(t, []ValueSite{{Entries: []ValueEntry{
		{Value: 2, Count: 9},
		{Value: 1, Count: 6},
	}}}, got)
}

func Test_Merge_valueSiteMismatch(t *testing.T) {
	a := profileWith(t, 0, &Record{
		Name: "f", FuncHash: 1,
		Values: ValueProfData{ValueKindMemOpSize: {{}, {}}},
	})
	b := profileWith(t, 0, &Record{
		Name: "f", FuncHash: 1,
		Values: ValueProfData{ValueKindMemOpSize: {{}}},
	})

	require.ErrorIs(t, a.Merge(b), format.ErrMalformed)
}

func Test_Merge_binaryIDs(t *testing.T) {
	a := profileWith(t, 0)
	a.BinaryIDs = [][]byte{{1, 2}}
	b := profileWith(t, 0)
	b.BinaryIDs = [][]byte{{1, 2}, {3, 4}}

	require.NoError(t, a.Merge(b))
	assert.Equal(t, [][]byte{{1, 2}, {3, 4}}, a.BinaryIDs)
}

func Test_Add_duplicate(t *testing.T) {
	p := profileWith(t, 0, &Record{Name: "f", FuncHash: 1})
	err := p.Add(&Record{Name: "f", FuncHash: 1})
	require.ErrorIs(t, err, format.ErrMalformed)

	// Same name, different structural hash: two distinct records.
	require.NoError(t, p.Add(&Record{Name: "f", FuncHash: 2}))
}

func Test_Summary(t *testing.T) {
	p := profileWith(t, FlagIR,
		&Record{Name: "a", FuncHash: 1, Counters: []uint64{100, 40, 2000}},
		&Record{Name: "b", FuncHash: 2, Counters: []uint64{7}},
		&Record{Name: "c", FuncHash: 3, Values: ValueProfData{
			ValueKindIndirectCall: {{}, {}},
		}},
	)

	assert.Equal(t, Summary{
		Functions:             3,
		TotalCounters:         4,
		MaxFunctionCount:      100,
		MaxInternalBlockCount: 2000,
		ValueSites:            2,
	}, p.Summary())
}

func Test_SortedRecords(t *testing.T) {
	p := profileWith(t, 0,
		&Record{Name: "zz", FuncHash: 1},
		&Record{Name: "aa", FuncHash: 2},
		&Record{NameHash: 5, FuncHash: 3},
	)
	recs := p.SortedRecords()
	require.Len(t, recs, 3)
	// Unnamed records sort ahead of named ones.
	assert.Equal(t, uint64(5), recs[0].NameHash)
	assert.Equal(t, "aa", recs[1].Name)
	assert.Equal(t, "zz", recs[2].Name)
}

func Test_Symtab(t *testing.T) {
	s := NewSymtab()
	h := s.Add("main")
	assert.Equal(t, HashName("main"), h)

	name, ok := s.Name(h)
	require.True(t, ok)
	assert.Equal(t, "main", name)

	_, ok = s.Name(12345)
	assert.False(t, ok)

	other := NewSymtab()
	other.Add("helper")
	s.Merge(other)
	assert.Equal(t, []string{"helper", "main"}, s.Names())
}
