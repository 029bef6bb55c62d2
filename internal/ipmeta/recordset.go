package ipmeta

import (
	"iter"

	"lukechampine.com/uint128"
)

// Entry is one lookup result: a record and the number of queried addresses
// it covers.
type Entry struct {
	Record *Record
	// MatchedIPs is query specific, unlike Record.ASNIPCount.
	MatchedIPs uint128.Uint128

	gen uint64
}

// Generation returns the RecordSet generation the entry was produced in.
func (e Entry) Generation() uint64 { return e.gen }

// RecordSet is a reusable buffer holding the results of one lookup.
//
// It is not a snapshot: the next Clear or lookup into the same set replaces
// its contents and bumps its generation. Entries obtained earlier can be
// checked with Valid.
type RecordSet struct {
	entries []Entry
	cursor  int
	gen     uint64
	filled  bool
}

// NewRecordSet returns an empty RecordSet.
func NewRecordSet() *RecordSet {
	return &RecordSet{}
}

// Clear discards all entries and starts a new generation. The backing
// storage is kept for reuse.
func (rs *RecordSet) Clear() {
	clear(rs.entries)
	rs.entries = rs.entries[:0]
	rs.cursor = 0
	rs.gen++
	rs.filled = false
}

// Rewind moves the read cursor back to the first entry.
func (rs *RecordSet) Rewind() {
	rs.cursor = 0
}

// Next returns the entry under the cursor and advances it. ok is false once
// the set is exhausted, or when it holds no lookup result.
func (rs *RecordSet) Next() (e Entry, ok bool) {
	if !rs.filled || rs.cursor >= len(rs.entries) {
		return Entry{}, false
	}
	e = rs.entries[rs.cursor]
	rs.cursor++
	return e, true
}

// All iterates every entry from the start, independent of the cursor.
func (rs *RecordSet) All() iter.Seq2[*Record, uint128.Uint128] {
	return func(yield func(*Record, uint128.Uint128) bool) {
		if !rs.filled {
			return
		}
		for _, e := range rs.entries {
			if !yield(e.Record, e.MatchedIPs) {
				return
			}
		}
	}
}

// Len returns the number of entries.
func (rs *RecordSet) Len() int {
	if !rs.filled {
		return 0
	}
	return len(rs.entries)
}

// Populated reports whether the set holds the result of a completed lookup.
func (rs *RecordSet) Populated() bool { return rs.filled }

// Generation increments on every Clear.
func (rs *RecordSet) Generation() uint64 { return rs.gen }

// Valid reports whether e was produced by the lookup currently held.
func (rs *RecordSet) Valid(e Entry) bool {
	return rs.filled && e.gen == rs.gen && e.Record != nil
}

func (rs *RecordSet) add(rec *Record, matched uint128.Uint128) {
	rs.entries = append(rs.entries, Entry{Record: rec, MatchedIPs: matched, gen: rs.gen})
}

func (rs *RecordSet) complete() {
	rs.filled = true
	rs.cursor = 0
}
