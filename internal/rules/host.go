// Package rules embeds a Risor VM so lint rules can be written as scripts
// against the checked project's semantic model, without recompiling the
// checker.
package rules

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/taproot/internal/diag"
	"github.com/jward/taproot/internal/source"
)

// Symbol is the flattened view of a binding a script sees.
type Symbol struct {
	Name string
	Kind string
	Span source.Span
}

// Model is the read surface exposed to rule scripts.
type Model interface {
	// Files lists the checked file paths.
	Files() []string
	// Symbols lists the module-level symbols of a file.
	Symbols(path string) []Symbol
	// TypeAt renders the inferred type of the expression at a byte offset.
	TypeAt(path string, offset int) (string, bool)
	// Text returns the source text of a byte range.
	Text(path string, start, end int) (string, bool)
	// Diagnostics returns the engine's diagnostics for a file.
	Diagnostics(path string) []diag.Diagnostic
}

// ScriptDiagnostic is a diagnostic a rule script emitted.
type ScriptDiagnostic struct {
	Path       string
	Diagnostic diag.Diagnostic
}

// Host embeds a Risor VM and provides semantic-model host functions to rule
// scripts.
type Host struct {
	model      Model
	scriptsDir string
	fsys       fs.FS
	logger     *slog.Logger

	emitted []ScriptDiagnostic
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithHostFS configures the Host to load scripts from an fs.FS instead of
// from disk. Also configures the Risor importer to resolve import
// statements against the same FS.
func WithHostFS(fsys fs.FS) HostOption {
	return func(h *Host) {
		h.fsys = fsys
	}
}

// WithHostLogger sets the logger rule scripts write to through log().
func WithHostLogger(logger *slog.Logger) HostOption {
	return func(h *Host) {
		h.logger = logger
	}
}

// NewHost creates a Host wired to the given model and scripts directory.
func NewHost(model Model, scriptsDir string, opts ...HostOption) *Host {
	h := &Host{
		model:      model,
		scriptsDir: scriptsDir,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Emitted returns the diagnostics scripts have emitted so far.
func (h *Host) Emitted() []ScriptDiagnostic {
	return h.emitted
}

// RunScript loads and executes a Risor rule script.
func (h *Host) RunScript(ctx context.Context, scriptPath string) error {
	src, err := h.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return h.eval(ctx, src, scriptPath)
}

// RunSource executes Risor source code directly. Useful for testing without
// script files.
func (h *Host) RunSource(ctx context.Context, src string) error {
	return h.eval(ctx, src, "<inline>")
}

func (h *Host) eval(ctx context.Context, src, label string) error {
	globals := h.buildGlobals()

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := h.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	_, err := risor.Eval(ctx, src, opts...)
	if err != nil {
		return fmt.Errorf("rules: script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns a Risor importer configured for the Host's script
// source. Returns nil if neither fs.FS nor scriptsDir is configured.
func (h *Host) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if h.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    h.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if h.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   h.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code.
func (h *Host) LoadScript(path string) (string, error) {
	if h.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(h.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("rules: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(h.scriptsDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("rules: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// ListScripts returns the .risor files under the configured script source.
func (h *Host) ListScripts() ([]string, error) {
	if h.fsys != nil {
		var scripts []string
		err := fs.WalkDir(h.fsys, ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".risor") {
				scripts = append(scripts, path)
			}
			return nil
		})
		return scripts, err
	}
	if h.scriptsDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(h.scriptsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("rules: listing scripts: %w", err)
	}
	var scripts []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".risor") {
			scripts = append(scripts, e.Name())
		}
	}
	return scripts, nil
}

// buildGlobals constructs the full set of globals exposed to rule scripts.
func (h *Host) buildGlobals() map[string]any {
	return map[string]any{
		"files":       makeFilesFn(h.model),
		"symbols":     makeSymbolsFn(h.model),
		"type_at":     makeTypeAtFn(h.model),
		"node_text":   makeNodeTextFn(h.model),
		"diagnostics": makeDiagnosticsFn(h.model),
		"emit":        makeEmitFn(h),
		"log":         mustProxy(&logObject{logger: h.logger}),
	}
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("rules: proxy error: %v", err))
	}
	return p
}
