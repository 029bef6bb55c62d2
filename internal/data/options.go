package data

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

var errMissingOption = errors.New("missing required option")

// optionSet parses getopt style provider option strings such as
// "-b blocks.csv.gz -l locations.csv.gz".
type optionSet struct {
	fs *flag.FlagSet
}

func newOptionSet(provider string) *optionSet {
	fs := flag.NewFlagSet(provider, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return &optionSet{fs: fs}
}

func (o *optionSet) file(name, usage string) *string {
	return o.fs.String(name, "", usage)
}

func (o *optionSet) parse(options string) error {
	if err := o.fs.Parse(strings.Fields(options)); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	if o.fs.NArg() > 0 {
		return fmt.Errorf("invalid options: unexpected argument %q", o.fs.Arg(0))
	}
	return nil
}

// require fails unless every named flag was given a value.
func (o *optionSet) require(names ...string) error {
	for _, name := range names {
		f := o.fs.Lookup(name)
		if f == nil || f.Value.String() == "" {
			return fmt.Errorf("%w -%s (%s)", errMissingOption, name, usageOf(f))
		}
	}
	return nil
}

func usageOf(f *flag.Flag) string {
	if f == nil {
		return "unknown"
	}
	return f.Usage
}
