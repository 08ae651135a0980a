// Package testutil provides shared test infrastructure for the clegans
// engine. It holds assertions over generated kernel source and numeric
// tolerances used across sim/ and its payload packages.
package testutil

import (
	"math"
	"strings"
	"testing"
)

// SourceLines splits generated source into lines with trailing whitespace
// removed. Blank lines are dropped.
func SourceLines(src string) []string {
	var lines []string
	for _, l := range strings.Split(src, "\n") {
		l = strings.TrimRight(l, " \t")
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// FindLine returns the index of the first line at or after from whose
// trimmed text equals want, or -1.
func FindLine(lines []string, from int, want string) int {
	for i := from; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == want {
			return i
		}
	}
	return -1
}

// AssertLinesInOrder checks that every wanted line appears in src, in order,
// ignoring indentation. Other lines may appear in between.
func AssertLinesInOrder(t *testing.T, src string, want ...string) {
	t.Helper()
	lines := SourceLines(src)
	at := 0
	for _, w := range want {
		i := FindLine(lines, at, w)
		if i < 0 {
			t.Errorf("line %q not found after line %d in generated source:\n%s", w, at, src)
			return
		}
		at = i + 1
	}
}

// AssertNoLine checks that no line of src, trimmed, equals line.
func AssertNoLine(t *testing.T, src, line string) {
	t.Helper()
	if FindLine(SourceLines(src), 0, line) >= 0 {
		t.Errorf("unexpected line %q in generated source:\n%s", line, src)
	}
}

// Indent returns the number of indent units before the first line whose
// trimmed text equals line, or -1 if absent.
func Indent(src, line, unit string) int {
	for _, l := range SourceLines(src) {
		if strings.TrimSpace(l) != line {
			continue
		}
		n := 0
		for strings.HasPrefix(l, unit) {
			l = l[len(unit):]
			n++
		}
		return n
	}
	return -1
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
