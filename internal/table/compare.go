package table

import (
	"regexp"
	"strconv"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var pureNumber = regexp.MustCompile(`^\d+(\.\d+)?$`)

// comparer orders cell values: numerically when both sides are plain
// numbers, otherwise with a numeric-aware, case-insensitive collation.
// A collator is not safe for concurrent use, so each sort builds its own.
type comparer struct {
	col *collate.Collator
}

func newComparer() *comparer {
	return &comparer{
		col: collate.New(language.Und, collate.Numeric, collate.IgnoreCase, collate.IgnoreDiacritics),
	}
}

func (c *comparer) compare(a, b string) int {
	if pureNumber.MatchString(a) && pureNumber.MatchString(b) {
		fa, _ := strconv.ParseFloat(a, 64)
		fb, _ := strconv.ParseFloat(b, 64)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return c.col.CompareString(a, b)
}
