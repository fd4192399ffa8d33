package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jward/taproot"
	"github.com/jward/taproot/internal/lint"
	"github.com/jward/taproot/internal/rules"
	"github.com/jward/taproot/internal/source"
)

// reportedDiagnostic is the flattened output record for both formats.
type reportedDiagnostic struct {
	Path     string `json:"path"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

// formatResults renders the run's diagnostics and returns how many were
// shown after suppression and rule selection.
func formatResults(w io.Writer, format string, results []taproot.Result, scriptDiags []rules.ScriptDiagnostic, selection *lint.Selection) int {
	var reports []reportedDiagnostic
	lineIndexes := make(map[string]*source.LineIndex)

	for _, res := range results {
		for _, d := range selection.Filter(res.Diagnostics) {
			reports = append(reports, toReport(res.Path, d, selection, lineIndexes))
		}
	}
	for _, sd := range scriptDiags {
		if sd.Diagnostic.Suppressed {
			continue
		}
		reports = append(reports, toReport(sd.Path, sd.Diagnostic, selection, lineIndexes))
	}

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].Path != reports[j].Path {
			return reports[i].Path < reports[j].Path
		}
		return reports[i].Start < reports[j].Start
	})

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(reports)
	default:
		for _, r := range reports {
			fmt.Fprintf(w, "%s:%d:%d: %s: %s [%s]\n",
				r.Path, r.Line, r.Col, r.Severity, r.Message, r.Rule)
		}
	}
	return len(reports)
}

func toReport(path string, d taproot.Diagnostic, selection *lint.Selection, lineIndexes map[string]*source.LineIndex) reportedDiagnostic {
	line, col := 1, 0
	if li := lineIndexFor(path, lineIndexes); li != nil {
		line, col = li.Position(d.Span.Start)
	}
	severity := lint.SeverityWarning
	if selection != nil {
		severity = selection.SeverityOf(d.Rule)
	}
	return reportedDiagnostic{
		Path:     path,
		Line:     line,
		Col:      col + 1,
		Rule:     d.Rule,
		Severity: severity.String(),
		Message:  d.Message,
		Start:    d.Span.Start,
		End:      d.Span.End,
	}
}

func lineIndexFor(path string, cache map[string]*source.LineIndex) *source.LineIndex {
	if li, ok := cache[path]; ok {
		return li
	}
	content, err := os.ReadFile(path)
	if err != nil {
		cache[path] = nil
		return nil
	}
	li := source.NewLineIndex(content)
	cache[path] = li
	return li
}

// outputError prints an error in the selected format and marks it handled.
func outputError(err error) error {
	errorHandled = true
	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stderr)
		_ = enc.Encode(map[string]string{"error": err.Error()})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	return err
}
