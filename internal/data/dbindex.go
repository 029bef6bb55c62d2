package data

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// IndexListing is the file, relative to an index base URL, that lists the
// published data files. Each line names one file, for example
//
//	2017-03-16.netacq-4-blocks.csv.gz 0f3c...
const IndexListing = "md5.md5"

// ErrNoDataSet is returned when an index holds no complete data set for the
// requested time.
var ErrNoDataSet = errors.New("no complete data set")

type indexLayout struct {
	pattern *regexp.Regexp
	tables  []string
	options func(files map[string]string) string
}

var indexLayouts = map[string]indexLayout{
	"maxmind": {
		pattern: regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.GeoLiteCity-(.+)\.csv\.gz$`),
		tables:  []string{"blocks", "location"},
		options: func(files map[string]string) string {
			return "-b " + files["blocks"] + " -l " + files["location"]
		},
	},
	"netacq-edge": {
		pattern: regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.netacq-4-(.+)\.csv\.gz$`),
		tables:  []string{"blocks", "locations", "polygons"},
		options: func(files map[string]string) string {
			return "-b " + files["blocks"] + " -l " + files["locations"] + " -p " + files["polygons"]
		},
	},
}

// Index selects a dated data set for a provider from a published listing,
// so a lookup can be tagged with the data that was current at some time.
type Index struct {
	provider string
	base     string
	layout   indexLayout
	fetcher  *Fetcher

	// sets maps a publication date to table name to file URL.
	sets map[time.Time]map[string]string
}

// NewIndex returns an index of the data sets published for provider under
// base. Only the maxmind and netacq-edge providers publish dated sets.
func NewIndex(fetcher *Fetcher, provider, base string) (*Index, error) {
	layout, ok := indexLayouts[provider]
	if !ok {
		return nil, fmt.Errorf("provider %q has no dated data index", provider)
	}
	return &Index{
		provider: provider,
		base:     strings.TrimSuffix(base, "/"),
		layout:   layout,
		fetcher:  fetcher,
	}, nil
}

// Load reads the listing. Lines that do not name a data file are skipped.
func (x *Index) Load(ctx context.Context) error {
	listing, err := x.fetcher.Fetch(ctx, x.base+"/"+IndexListing)
	if err != nil {
		return err
	}

	sets := make(map[time.Time]map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(listing))
	for sc.Scan() {
		for _, field := range strings.Fields(sc.Text()) {
			m := x.layout.pattern.FindStringSubmatch(field)
			if m == nil {
				continue
			}
			date, err := time.Parse(time.DateOnly, m[1])
			if err != nil {
				continue
			}
			if sets[date] == nil {
				sets[date] = make(map[string]string)
			}
			sets[date][strings.ToLower(m[2])] = x.base + "/" + field
			break
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read %s index: %w", x.provider, err)
	}
	x.sets = sets
	return nil
}

// Dates returns the dates of the complete data sets, oldest first.
func (x *Index) Dates() []time.Time {
	var dates []time.Time
	for date, files := range x.sets {
		if x.complete(files) {
			dates = append(dates, date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Best returns the files of the newest complete data set published on or
// before at. A zero at selects the latest set.
func (x *Index) Best(at time.Time) (time.Time, map[string]string, error) {
	dates := x.Dates()
	for i := len(dates) - 1; i >= 0; i-- {
		if at.IsZero() || !dates[i].After(at) {
			return dates[i], x.sets[dates[i]], nil
		}
	}
	if at.IsZero() {
		return time.Time{}, nil, fmt.Errorf("%w for %s", ErrNoDataSet, x.provider)
	}
	return time.Time{}, nil, fmt.Errorf("%w for %s on or before %s", ErrNoDataSet, x.provider, at.Format(time.DateOnly))
}

// Spec returns a provider spec ("name options") enabling the best data set
// for at.
func (x *Index) Spec(at time.Time) (string, error) {
	_, files, err := x.Best(at)
	if err != nil {
		return "", err
	}
	return x.provider + " " + x.layout.options(files), nil
}

func (x *Index) complete(files map[string]string) bool {
	for _, table := range x.layout.tables {
		if _, ok := files[table]; !ok {
			return false
		}
	}
	return true
}
