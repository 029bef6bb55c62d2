package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
)

// maxPreamble bounds the lines skipped before a CSV header, e.g. the
// copyright line of the legacy GeoLite tables.
const maxPreamble = 5

// csvTable reads a CSV file by column name.
type csvTable struct {
	name string
	r    *csv.Reader
	cols map[string]int
	line int
}

// newCSVTable skips to the first row naming every required column and uses
// it as the header.
func newCSVTable(name string, rd io.Reader, required ...string) (*csvTable, error) {
	r := csv.NewReader(rd)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	t := &csvTable{name: name, r: r}
	for i := 0; i < maxPreamble; i++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read header: %w", name, err)
		}
		t.line++

		cols := make(map[string]int, len(row))
		for j, c := range row {
			cols[strings.ToLower(strings.TrimSpace(c))] = j
		}
		if hasAll(cols, required) {
			t.cols = cols
			return t, nil
		}
	}
	return nil, fmt.Errorf("%s: no header with columns %s", name, strings.Join(required, ","))
}

func hasAll(cols map[string]int, names []string) bool {
	for _, n := range names {
		if _, ok := cols[n]; !ok {
			return false
		}
	}
	return true
}

// col returns the index of the first present column among names, or -1.
func (t *csvTable) col(names ...string) int {
	for _, n := range names {
		if i, ok := t.cols[n]; ok {
			return i
		}
	}
	return -1
}

// next returns the next row. The slice is reused between calls.
func (t *csvTable) next() ([]string, error) {
	row, err := t.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}
	t.line++
	return row, nil
}

func (t *csvTable) errorf(format string, args ...any) error {
	return fmt.Errorf("%s line %d: %s", t.name, t.line, fmt.Sprintf(format, args...))
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseUint32(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// parseAddr accepts dotted/colon notation or an unsigned 32-bit IPv4
// integer as used by the legacy block tables.
func parseAddr(s string) (netip.Addr, error) {
	if strings.ContainsAny(s, ".:") {
		a, err := netip.ParseAddr(s)
		return a.Unmap(), err
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid address %q", s)
	}
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}), nil
}

// newTSVReader reads headerless tab separated files with # comments.
func newTSVReader(rd io.Reader) *csv.Reader {
	r := csv.NewReader(rd)
	r.Comma = '\t'
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true
	return r
}
