package engine

import "strings"

// Apply substitutes plan fragments for markers in ascending line order.
// The i-th marker receives the i-th plan element if one exists, otherwise
// the marker line stays verbatim. Substitution is all-or-nothing per marker.
//
// Every non-blank line of a multi-line fragment inherits the indentation of
// the marker line it replaces; blank lines are left as-is. The output is
// deterministic for identical (content, plan) inputs.
func Apply(content string, plan []string) (string, int) {
	lines := splitLines(content)
	applied := 0

	var out []string
	for _, line := range lines {
		if strings.TrimSpace(line) != MarkerToken || applied >= len(plan) {
			out = append(out, line)
			continue
		}
		out = append(out, indentFragment(plan[applied], leadingWhitespace(line))...)
		applied++
	}
	return strings.Join(out, "\n"), applied
}

// indentFragment prefixes every non-blank fragment line with the marker
// line's leading whitespace.
func indentFragment(fragment, indent string) []string {
	fragLines := strings.Split(fragment, "\n")
	for i, fl := range fragLines {
		if strings.TrimSpace(fl) == "" {
			continue
		}
		fragLines[i] = indent + fl
	}
	return fragLines
}
