// Package engine implements the marker-based patch pipeline:
// scan → plan → apply → execute. The engine does not parse or understand the
// host document's language; content is lines of text plus one reserved token.
package engine

import "strings"

// MarkerToken is the reserved injection marker. A line is a marker only when
// its trimmed content equals this literal exactly — the token embedded in a
// larger statement is never recognized.
const MarkerToken = "Car();"

// Marker locates one injection site in a document.
type Marker struct {
	Line   int    // 1-based line number.
	Indent string // Exact leading whitespace of the marker line.
}

// ScanResult reports every marker occurrence in a document, in ascending
// line order.
type ScanResult struct {
	Count   int
	Markers []Marker
}

// Scan locates marker occurrences in content. It is a pure, total function:
// same content, same result, any number of calls.
func Scan(content string) ScanResult {
	lines := splitLines(content)

	var markers []Marker
	for i, line := range lines {
		if strings.TrimSpace(line) != MarkerToken {
			continue
		}
		markers = append(markers, Marker{
			Line:   i + 1,
			Indent: leadingWhitespace(line),
		})
	}
	return ScanResult{Count: len(markers), Markers: markers}
}

// splitLines normalizes line-ending variants to \n and splits.
func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.Split(content, "\n")
}

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
