package rules

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/jward/taproot/internal/diag"
	"github.com/jward/taproot/internal/source"
)

type fakeModel struct {
	files   []string
	symbols map[string][]Symbol
	types   map[string]map[int]string
	text    map[string]string
	diags   map[string][]diag.Diagnostic
}

func (m *fakeModel) Files() []string            { return m.files }
func (m *fakeModel) Symbols(path string) []Symbol { return m.symbols[path] }

func (m *fakeModel) TypeAt(path string, offset int) (string, bool) {
	t, ok := m.types[path][offset]
	return t, ok
}

func (m *fakeModel) Text(path string, start, end int) (string, bool) {
	s, ok := m.text[path]
	if !ok || start < 0 || end > len(s) || start > end {
		return "", false
	}
	return s[start:end], true
}

func (m *fakeModel) Diagnostics(path string) []diag.Diagnostic { return m.diags[path] }

func newFakeModel() *fakeModel {
	return &fakeModel{
		files: []string{"/proj/a.py", "/proj/b.py"},
		symbols: map[string][]Symbol{
			"/proj/a.py": {
				{Name: "x", Kind: "assignment", Span: source.Span{Start: 0, End: 1}},
				{Name: "f", Kind: "function-def", Span: source.Span{Start: 10, End: 11}},
			},
		},
		types: map[string]map[int]string{
			"/proj/a.py": {0: "Literal[1]"},
		},
		text: map[string]string{
			"/proj/a.py": "x = 1\ndef f(): pass\n",
		},
		diags: map[string][]diag.Diagnostic{
			"/proj/b.py": {
				{Rule: "unresolved-reference", Message: "nope", Span: source.Span{Start: 4, End: 8}},
			},
		},
	}
}

func TestRunSource_FilesAndSymbols(t *testing.T) {
	h := NewHost(newFakeModel(), "")
	ctx := context.Background()

	script := `
paths := files()
assert(len(paths) == 2, 'expected 2 files, got {len(paths)}')

syms := symbols(paths[0])
assert(len(syms) == 2, 'expected 2 symbols, got {len(syms)}')
assert(syms[0]["name"] == "x", 'expected x, got {syms[0]["name"]}')
assert(syms[1]["kind"] == "function-def", 'got {syms[1]["kind"]}')
`
	if err := h.RunSource(ctx, script); err != nil {
		t.Fatalf("RunSource: %v", err)
	}
}

func TestRunSource_TypeAtAndNodeText(t *testing.T) {
	h := NewHost(newFakeModel(), "")
	ctx := context.Background()

	script := `
ty := type_at("/proj/a.py", 0)
assert(ty == "Literal[1]", 'got {ty}')
assert(type_at("/proj/a.py", 999) == nil, "expected nil for unknown offset")

text := node_text("/proj/a.py", 0, 5)
assert(text == "x = 1", 'got {text}')
`
	if err := h.RunSource(ctx, script); err != nil {
		t.Fatalf("RunSource: %v", err)
	}
}

func TestRunSource_DiagnosticsAndEmit(t *testing.T) {
	h := NewHost(newFakeModel(), "")
	ctx := context.Background()

	script := `
diags := diagnostics("/proj/b.py")
assert(len(diags) == 1, 'got {len(diags)}')
assert(diags[0]["rule"] == "unresolved-reference", 'got {diags[0]["rule"]}')

emit({
    "path": "/proj/b.py",
    "rule": "custom-rule",
    "message": "from script",
    "start": diags[0]["start"],
    "end": diags[0]["end"],
})
`
	if err := h.RunSource(ctx, script); err != nil {
		t.Fatalf("RunSource: %v", err)
	}

	emitted := h.Emitted()
	if len(emitted) != 1 {
		t.Fatalf("expected 1 emitted diagnostic, got %d", len(emitted))
	}
	got := emitted[0]
	if got.Path != "/proj/b.py" {
		t.Errorf("path = %q", got.Path)
	}
	if got.Diagnostic.Rule != "custom-rule" || got.Diagnostic.Message != "from script" {
		t.Errorf("diagnostic = %+v", got.Diagnostic)
	}
	if got.Diagnostic.Span.Start != 4 || got.Diagnostic.Span.End != 8 {
		t.Errorf("span = %v", got.Diagnostic.Span)
	}
}

func TestRunSource_EmitWithoutRuleFails(t *testing.T) {
	h := NewHost(newFakeModel(), "")
	err := h.RunSource(context.Background(), `emit({"message": "no rule"})`)
	if err == nil {
		t.Fatal("expected error for emit without rule")
	}
	if !strings.Contains(err.Error(), "rule is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunSource_ScriptErrorIsWrapped(t *testing.T) {
	h := NewHost(newFakeModel(), "")
	err := h.RunSource(context.Background(), `this is not risor ((`)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "<inline>") {
		t.Errorf("error should name the script: %v", err)
	}
}

func TestListScripts_FromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"a.risor":        {Data: []byte(`emit({"rule": "a"})`)},
		"nested/b.risor": {Data: []byte(`emit({"rule": "b"})`)},
		"readme.md":      {Data: []byte("not a script")},
	}
	h := NewHost(newFakeModel(), "", WithHostFS(fsys))

	scripts, err := h.ListScripts()
	if err != nil {
		t.Fatalf("ListScripts: %v", err)
	}
	if len(scripts) != 2 {
		t.Fatalf("expected 2 scripts, got %v", scripts)
	}
}

func TestRunScript_FromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"flag.risor": {Data: []byte(`
for _, path := range files() {
    emit({"path": path, "rule": "flag-all", "message": "flagged"})
}
`)},
	}
	h := NewHost(newFakeModel(), "", WithHostFS(fsys))

	if err := h.RunScript(context.Background(), "flag.risor"); err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if len(h.Emitted()) != 2 {
		t.Fatalf("expected 2 emitted, got %d", len(h.Emitted()))
	}
}

func TestListScripts_MissingDirIsEmpty(t *testing.T) {
	h := NewHost(newFakeModel(), "/does/not/exist")
	scripts, err := h.ListScripts()
	if err != nil {
		t.Fatalf("ListScripts: %v", err)
	}
	if len(scripts) != 0 {
		t.Fatalf("expected no scripts, got %v", scripts)
	}
}
