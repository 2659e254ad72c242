package analytics

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// money renders v with two decimals and comma thousands separators.
func money(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}

// plain renders a float the way a bare number is printed in answers: shortest
// form with at least one decimal place.
func plain(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// pad left-aligns s in a column of width w.
func pad(s string, w int) string {
	return fmt.Sprintf("%-*s", w, s)
}
