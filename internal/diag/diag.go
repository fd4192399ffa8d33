// Package diag defines the diagnostic value shared by the inference engine,
// the suppression matcher, and the emission layers. Diagnostics are plain
// values: malformed input Python never surfaces as an error, only as entries
// here.
package diag

import (
	"fmt"
	"sort"

	"github.com/jward/taproot/internal/source"
)

// Diagnostic is one finding against a file, positioned by byte span.
type Diagnostic struct {
	Rule       string
	Message    string
	Span       source.Span
	Suppressed bool
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s [%s]", d.Rule, d.Message, d.Span)
}

// Render formats the diagnostic as path:line:col using the file's line index.
func (d Diagnostic) Render(path string, lines *source.LineIndex) string {
	line, col := lines.Position(d.Span.Start)
	return fmt.Sprintf("%s:%d:%d: %s: %s", path, line, col, d.Rule, d.Message)
}

// Sort orders diagnostics by start offset, then end, then rule id. Ordering
// is presentation-only; no cross-file guarantees exist.
func Sort(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].Span.Start != diags[j].Span.Start {
			return diags[i].Span.Start < diags[j].Span.Start
		}
		if diags[i].Span.End != diags[j].Span.End {
			return diags[i].Span.End < diags[j].Span.End
		}
		return diags[i].Rule < diags[j].Rule
	})
}
