package taproot

import (
	"context"

	"github.com/jward/taproot/internal/diag"
	"github.com/jward/taproot/internal/index"
	"github.com/jward/taproot/internal/infer"
	"github.com/jward/taproot/internal/rules"
	"github.com/jward/taproot/internal/source"
)

// SemanticModel is the read surface over checked files: types at positions,
// module-level symbols, diagnostics. It satisfies rules.Model so scripted
// rules see the same view the CLI does.
type SemanticModel struct {
	checker *Checker
	ctx     context.Context
}

// Model returns the semantic model over the checker's current inputs.
func (c *Checker) Model() *SemanticModel {
	return &SemanticModel{checker: c, ctx: context.Background()}
}

// Files lists the checked file paths, existing files only.
func (m *SemanticModel) Files() []string {
	var paths []string
	for _, p := range m.checker.files.Paths() {
		if f, ok := m.checker.files.Lookup(p); ok && f.Status == source.StatusExists {
			paths = append(paths, p)
		}
	}
	return paths
}

func (m *SemanticModel) indexOf(path string) *index.SemanticIndex {
	ix, _ := m.checker.cache.Get(m.ctx, "index", path).(*index.SemanticIndex)
	return ix
}

func (m *SemanticModel) inferOf(path string) *infer.Result {
	res, _ := m.checker.cache.Get(m.ctx, "infer", path).(*infer.Result)
	return res
}

// Symbols lists a file's module-level symbols with their binding kinds.
func (m *SemanticModel) Symbols(path string) []rules.Symbol {
	ix := m.indexOf(path)
	if ix == nil {
		return nil
	}
	scope := ix.Scope(ix.ModuleScope())
	if scope == nil {
		return nil
	}
	var syms []rules.Symbol
	for _, sym := range scope.Symbols() {
		if len(sym.Bindings) == 0 {
			continue
		}
		b := ix.Binding(sym.Bindings[len(sym.Bindings)-1])
		if b == nil {
			continue
		}
		syms = append(syms, rules.Symbol{
			Name: sym.Name,
			Kind: b.Kind.String(),
			Span: b.Span,
		})
	}
	return syms
}

// TypeAt renders the inferred type of the innermost expression covering a
// byte offset.
func (m *SemanticModel) TypeAt(path string, offset int) (string, bool) {
	ix := m.indexOf(path)
	res := m.inferOf(path)
	if ix == nil || res == nil {
		return "", false
	}

	best := index.NoExprID
	bestWidth := 0
	for i, e := range ix.Exprs() {
		if e.Span.Start <= offset && offset < e.Span.End {
			width := e.Span.End - e.Span.Start
			if !best.IsValid() || width < bestWidth {
				best = index.ExprID(i + 1)
				bestWidth = width
			}
		}
	}
	if !best.IsValid() {
		return "", false
	}
	// identifier reads render their narrowed type, not the declared one
	if u, ok := ix.UseOf(best); ok {
		return res.UseType(u.ID).String(), true
	}
	return res.ExprType(best).String(), true
}

// ResolveName renders the type of a module-level name.
func (m *SemanticModel) ResolveName(path, name string) (string, bool) {
	ix := m.indexOf(path)
	res := m.inferOf(path)
	if ix == nil || res == nil {
		return "", false
	}
	scope := ix.Scope(ix.ModuleScope())
	if scope == nil {
		return "", false
	}
	sym, ok := scope.Symbol(name)
	if !ok || len(sym.Bindings) == 0 {
		return "", false
	}
	return res.BindingType(sym.Bindings[len(sym.Bindings)-1]).String(), true
}

// Text returns the source text of a byte range.
func (m *SemanticModel) Text(path string, start, end int) (string, bool) {
	m.checker.mu.Lock()
	content, ok := m.checker.contents[path]
	m.checker.mu.Unlock()
	if !ok || start < 0 || end > len(content) || start > end {
		return "", false
	}
	return string(content[start:end]), true
}

// Diagnostics returns the engine's diagnostics for a file, suppressions
// applied.
func (m *SemanticModel) Diagnostics(path string) []diag.Diagnostic {
	diags, _ := m.checker.cache.Get(m.ctx, "diagnostics", path).(Diagnostics)
	return diags
}
