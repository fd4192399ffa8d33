package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/risor-io/risor/object"

	"github.com/jward/taproot/internal/diag"
	"github.com/jward/taproot/internal/source"
)

// Host functions accept and return Risor maps with primitive values; scripts
// cannot construct Go struct pointers, so conversion happens Go-side.

// makeFilesFn creates the "files" host function.
//
// files() → []string
func makeFilesFn(m Model) *object.Builtin {
	return object.NewBuiltin("files", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("files", 0, len(args))
		}
		var paths []object.Object
		for _, p := range m.Files() {
			paths = append(paths, object.NewString(p))
		}
		if paths == nil {
			paths = []object.Object{}
		}
		return object.NewList(paths)
	})
}

// makeSymbolsFn creates the "symbols" host function.
//
// symbols(path) → []map{name, kind, start, end}
func makeSymbolsFn(m Model) *object.Builtin {
	return object.NewBuiltin("symbols", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("symbols", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("symbols: %v", err)
		}
		var out []object.Object
		for _, sym := range m.Symbols(path) {
			out = append(out, object.NewMap(map[string]object.Object{
				"name":  object.NewString(sym.Name),
				"kind":  object.NewString(sym.Kind),
				"start": object.NewInt(int64(sym.Span.Start)),
				"end":   object.NewInt(int64(sym.Span.End)),
			}))
		}
		if out == nil {
			out = []object.Object{}
		}
		return object.NewList(out)
	})
}

// makeTypeAtFn creates the "type_at" host function.
//
// type_at(path, offset) → string or nil
func makeTypeAtFn(m Model) *object.Builtin {
	return object.NewBuiltin("type_at", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("type_at", 2, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("type_at: %v", err)
		}
		offset, err := toInt64(args[1])
		if err != nil {
			return object.Errorf("type_at: %v", err)
		}
		rendered, ok := m.TypeAt(path, int(offset))
		if !ok {
			return object.Nil
		}
		return object.NewString(rendered)
	})
}

// makeNodeTextFn creates the "node_text" host function.
//
// node_text(path, start, end) → string or nil
func makeNodeTextFn(m Model) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 3 {
			return object.NewArgsError("node_text", 3, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("node_text: %v", err)
		}
		start, err := toInt64(args[1])
		if err != nil {
			return object.Errorf("node_text: %v", err)
		}
		end, err := toInt64(args[2])
		if err != nil {
			return object.Errorf("node_text: %v", err)
		}
		text, ok := m.Text(path, int(start), int(end))
		if !ok {
			return object.Nil
		}
		return object.NewString(text)
	})
}

// makeDiagnosticsFn creates the "diagnostics" host function.
//
// diagnostics(path) → []map{rule, message, start, end, suppressed}
func makeDiagnosticsFn(m Model) *object.Builtin {
	return object.NewBuiltin("diagnostics", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("diagnostics", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("diagnostics: %v", err)
		}
		var out []object.Object
		for _, d := range m.Diagnostics(path) {
			out = append(out, object.NewMap(map[string]object.Object{
				"rule":       object.NewString(d.Rule),
				"message":    object.NewString(d.Message),
				"start":      object.NewInt(int64(d.Span.Start)),
				"end":        object.NewInt(int64(d.Span.End)),
				"suppressed": object.NewBool(d.Suppressed),
			}))
		}
		if out == nil {
			out = []object.Object{}
		}
		return object.NewList(out)
	})
}

// makeEmitFn creates the "emit" host function.
//
// emit({path, rule, message, start, end}) → nil
func makeEmitFn(h *Host) *object.Builtin {
	return object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("emit: %v", err)
		}
		rule := getString(m, "rule")
		if rule == "" {
			return object.Errorf("emit: rule is required")
		}
		h.emitted = append(h.emitted, ScriptDiagnostic{
			Path: getString(m, "path"),
			Diagnostic: diag.Diagnostic{
				Rule:    rule,
				Message: getString(m, "message"),
				Span: source.Span{
					Start: getInt(m, "start"),
					End:   getInt(m, "end"),
				},
			},
		})
		return object.Nil
	})
}

// logObject provides log.info/warn/error methods for rule scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg, "source", "rule-script")
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg, "source", "rule-script")
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg, "source", "rule-script")
}

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getInt(m map[string]object.Object, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	if i, ok := v.(*object.Int); ok {
		return int(i.Value())
	}
	if f, ok := v.(*object.Float); ok {
		return int(f.Value())
	}
	return 0
}

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
