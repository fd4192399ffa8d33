package taproot

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jward/taproot/internal/diag"
	"github.com/jward/taproot/internal/index"
	"github.com/jward/taproot/internal/infer"
	"github.com/jward/taproot/internal/query"
	"github.com/jward/taproot/internal/rules"
	"github.com/jward/taproot/internal/source"
	"github.com/jward/taproot/internal/store"
	"github.com/jward/taproot/internal/suppress"
)

// Diagnostics is one file's diagnostic list, in position order. It is a
// cached query value: equal lists stop invalidation from cascading to
// project-level aggregates.
type Diagnostics []diag.Diagnostic

// Equal implements structural comparison for early cutoff.
func (d Diagnostics) Equal(other any) bool {
	o, ok := other.(Diagnostics)
	if !ok || len(d) != len(o) {
		return false
	}
	for i := range d {
		if d[i] != o[i] {
			return false
		}
	}
	return true
}

// Checker orchestrates the pipeline: file discovery, change detection,
// parsing, semantic indexing, type inference, suppression matching, and
// scripted rules. All derived state lives in the query cache; the SQLite
// store only shortcuts re-checking files whose content hash is unchanged
// across process runs.
type Checker struct {
	logger *slog.Logger
	files  *source.FileTable
	cache  *query.Cache
	store  *store.Store

	root       string
	storePath  string
	scriptsDir string
	scriptsFS  fs.FS
	parallel   bool

	mu       sync.Mutex
	contents map[string][]byte
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithParallel controls parallel checking. When true (default), independent
// files are checked on a worker pool, each worker holding a cache snapshot.
func WithParallel(parallel bool) Option {
	return func(c *Checker) {
		c.parallel = parallel
	}
}

// WithStorePath enables the persistent result store at the given SQLite
// database path. Without it every run starts cold.
func WithStorePath(dbPath string) Option {
	return func(c *Checker) {
		c.storePath = dbPath
	}
}

// WithRulesDir sets the directory scripted rules are loaded from.
func WithRulesDir(dir string) Option {
	return func(c *Checker) {
		c.scriptsDir = dir
	}
}

// WithRulesFS loads scripted rules from the given filesystem instead of
// from disk. This enables embedding rule scripts via go:embed.
func WithRulesFS(fsys fs.FS) Option {
	return func(c *Checker) {
		c.scriptsFS = fsys
	}
}

// New creates a Checker rooted at root. root anchors module resolution:
// pkg/util.py under root is importable as pkg.util.
func New(root string, opts ...Option) (*Checker, error) {
	c := &Checker{
		logger:   slog.Default(),
		files:    source.NewFileTable(),
		root:     root,
		parallel: true,
		contents: make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.storePath != "" {
		s, err := store.NewStore(c.storePath)
		if err != nil {
			return nil, fmt.Errorf("taproot: open store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("taproot: migrate: %w", err)
		}
		c.store = s
	}

	c.cache = query.New(c.logger)
	c.registerQueries()
	return c, nil
}

// Close releases the Checker's database resources, if any.
func (c *Checker) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// Store returns the underlying persistent store, or nil when disabled.
func (c *Checker) Store() *store.Store {
	return c.store
}

// Files returns the file table.
func (c *Checker) Files() *source.FileTable {
	return c.files
}

// registerQueries wires the derived-query pipeline into the cache. Inputs
// are "source" (per path) and "filelist" (the sorted path set); everything
// else derives from those.
func (c *Checker) registerQueries() {
	c.cache.Register("parse", (*source.ParsedModule)(nil), func(cx *query.Ctx, arg any) any {
		path := arg.(string)
		src, _ := cx.Input("source", path).(string)
		parsed, err := source.Parse(cx.Context(), []byte(src))
		if err != nil {
			c.logger.Debug("parse aborted", "path", path, "error", err)
			return (*source.ParsedModule)(nil)
		}
		return parsed
	})

	c.cache.Register("index", (*index.SemanticIndex)(nil), func(cx *query.Ctx, arg any) any {
		parsed, _ := cx.Get("parse", arg).(*source.ParsedModule)
		if parsed == nil {
			return (*index.SemanticIndex)(nil)
		}
		return index.Build(parsed)
	})

	c.cache.Register("infer", &infer.Result{}, func(cx *query.Ctx, arg any) any {
		parsed, _ := cx.Get("parse", arg).(*source.ParsedModule)
		ix, _ := cx.Get("index", arg).(*index.SemanticIndex)
		if parsed == nil || ix == nil {
			return &infer.Result{}
		}
		resolver := &moduleResolver{checker: c, cx: cx}
		return infer.File(parsed, ix, resolver, c.logger)
	})

	c.cache.Register("suppressions", (*suppress.Table)(nil), func(cx *query.Ctx, arg any) any {
		parsed, _ := cx.Get("parse", arg).(*source.ParsedModule)
		if parsed == nil {
			return (*suppress.Table)(nil)
		}
		return suppress.Build(parsed)
	})

	c.cache.Register("diagnostics", Diagnostics(nil), func(cx *query.Ctx, arg any) any {
		parsed, _ := cx.Get("parse", arg).(*source.ParsedModule)
		res, _ := cx.Get("infer", arg).(*infer.Result)
		if parsed == nil || res == nil {
			return Diagnostics(nil)
		}
		diags := make(Diagnostics, 0, len(res.Diagnostics)+len(parsed.Errors))
		for _, se := range parsed.Errors {
			diags = append(diags, diag.Diagnostic{
				Rule:    "syntax-error",
				Message: se.Message,
				Span:    se.Span,
			})
		}
		diags = append(diags, res.Diagnostics...)
		diag.Sort(diags)
		if table, _ := cx.Get("suppressions", arg).(*suppress.Table); table != nil {
			table.Apply(diags)
		}
		return diags
	})
}

// SetSource loads or updates one file's content as a cache input and bumps
// the file table revision when the content actually changed.
func (c *Checker) SetSource(path string, content []byte) {
	c.mu.Lock()
	prev, had := c.contents[path]
	c.contents[path] = content
	c.mu.Unlock()

	if !had || string(prev) != string(content) {
		c.files.Touch(path)
	}
	c.cache.SetInput("source", path, string(content))
	c.setFileList()
}

// RemoveSource drops a file: its source becomes empty and the file table
// marks it deleted. Imports resolving to it degrade to unresolved.
func (c *Checker) RemoveSource(path string) {
	c.mu.Lock()
	delete(c.contents, path)
	c.mu.Unlock()

	c.files.Delete(path)
	c.cache.SetInput("source", path, "")
	c.setFileList()
}

func (c *Checker) setFileList() {
	c.mu.Lock()
	paths := make([]string, 0, len(c.contents))
	for p := range c.contents {
		paths = append(paths, p)
	}
	c.mu.Unlock()
	sort.Strings(paths)
	c.cache.SetInput("filelist", "", paths)
}

// Result is one checked file's outcome.
type Result struct {
	Path        string
	Diagnostics Diagnostics
	FromStore   bool
}

// Check loads the given files and produces diagnostics for each. Files whose
// content hash matches the persistent store, and whose imports all also
// hashed clean, are answered from stored results without re-parsing.
func (c *Checker) Check(ctx context.Context, paths []string) ([]Result, error) {
	var readErrs []error
	loaded := make([]string, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			readErrs = append(readErrs, fmt.Errorf("read %s: %w", path, err))
			continue
		}
		c.SetSource(path, content)
		loaded = append(loaded, path)
	}

	replayable := c.replayablePaths(loaded)

	var dirty []string
	results := make(map[string]Result, len(loaded))
	for _, path := range loaded {
		if stored, ok := replayable[path]; ok {
			results[path] = Result{Path: path, Diagnostics: stored, FromStore: true}
			continue
		}
		dirty = append(dirty, path)
	}

	var err error
	if c.parallel {
		err = c.checkParallel(ctx, dirty, results)
	} else {
		err = c.checkSerial(ctx, dirty, results)
	}
	if err != nil {
		return nil, err
	}

	c.persistResults(dirty, results)

	out := make([]Result, 0, len(loaded))
	for _, path := range loaded {
		out = append(out, results[path])
	}
	if len(readErrs) > 0 {
		return out, fmt.Errorf("checking had %d read error(s): %w", len(readErrs), readErrs[0])
	}
	return out, nil
}

func (c *Checker) checkSerial(ctx context.Context, paths []string, results map[string]Result) error {
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		diags, _ := c.cache.Get(ctx, "diagnostics", path).(Diagnostics)
		results[path] = Result{Path: path, Diagnostics: diags}
	}
	return nil
}

// replayablePaths returns the stored diagnostics for files that can skip
// checking entirely: their own content hash matches the store, and so does
// the hash of every file they were recorded to import. One hop of import
// staleness is enough because a module's exported types only depend on its
// own content and its direct imports' resolved types, which the recorded
// edges cover transitively run over run.
func (c *Checker) replayablePaths(paths []string) map[string]Diagnostics {
	if c.store == nil {
		return nil
	}

	hashClean := make(map[string]bool, len(paths))
	fileIDs := make(map[string]int64, len(paths))
	for _, path := range paths {
		c.mu.Lock()
		content := c.contents[path]
		c.mu.Unlock()
		rec, err := c.store.FileByPath(path)
		if err != nil || rec == nil {
			continue
		}
		fileIDs[path] = rec.ID
		hashClean[path] = rec.Hash == store.ComputeContentHash(content)
	}

	out := make(map[string]Diagnostics)
	for _, path := range paths {
		if !hashClean[path] {
			continue
		}
		imports, err := c.store.ImportsByFile(fileIDs[path])
		if err != nil {
			continue
		}
		stale := false
		for _, module := range imports {
			dep, ok := c.pathForModule(module)
			if ok && !hashClean[dep] {
				stale = true
				break
			}
		}
		if stale {
			continue
		}
		stored, err := c.store.DiagnosticsByFile(fileIDs[path])
		if err != nil {
			continue
		}
		diags := make(Diagnostics, 0, len(stored))
		for _, d := range stored {
			diags = append(diags, diag.Diagnostic{
				Rule:       d.Rule,
				Message:    d.Message,
				Span:       source.Span{Start: d.StartOffset, End: d.EndOffset},
				Suppressed: d.Suppressed,
			})
		}
		out[path] = diags
	}
	return out
}

// persistResults writes the freshly-checked files' hashes, diagnostics, and
// import edges back to the store.
func (c *Checker) persistResults(paths []string, results map[string]Result) {
	if c.store == nil {
		return
	}
	for _, path := range paths {
		c.mu.Lock()
		content := c.contents[path]
		c.mu.Unlock()

		rev := int64(0)
		if f, ok := c.files.Lookup(path); ok {
			rev = int64(f.Revision)
		}
		fileID, err := c.store.UpsertFile(&store.File{
			Path:        path,
			Hash:        store.ComputeContentHash(content),
			Revision:    rev,
			LastChecked: time.Now().UTC(),
		})
		if err != nil {
			c.logger.Warn("persist file record failed", "path", path, "error", err)
			continue
		}

		res := results[path]
		stored := make([]store.Diagnostic, 0, len(res.Diagnostics))
		for _, d := range res.Diagnostics {
			stored = append(stored, store.Diagnostic{
				FileID:      fileID,
				Rule:        d.Rule,
				Message:     d.Message,
				StartOffset: d.Span.Start,
				EndOffset:   d.Span.End,
				Suppressed:  d.Suppressed,
			})
		}
		if err := c.store.ReplaceDiagnostics(fileID, stored); err != nil {
			c.logger.Warn("persist diagnostics failed", "path", path, "error", err)
		}

		if ix, _ := c.cache.Get(context.Background(), "index", path).(*index.SemanticIndex); ix != nil {
			modules := importedModules(ix)
			if err := c.store.ReplaceImports(fileID, modules); err != nil {
				c.logger.Warn("persist imports failed", "path", path, "error", err)
			}
		}
	}
}

func importedModules(ix *index.SemanticIndex) []string {
	seen := make(map[string]bool)
	var modules []string
	for _, b := range ix.Bindings() {
		imp, ok := ix.ImportOf(b.ID)
		if !ok || seen[imp.Module] {
			continue
		}
		seen[imp.Module] = true
		modules = append(modules, imp.Module)
	}
	sort.Strings(modules)
	return modules
}

// RunRuleScripts executes every configured .risor rule script against the
// current semantic model and returns the diagnostics they emitted.
func (c *Checker) RunRuleScripts(ctx context.Context) ([]rules.ScriptDiagnostic, error) {
	if c.scriptsDir == "" && c.scriptsFS == nil {
		return nil, nil
	}
	var hostOpts []rules.HostOption
	if c.scriptsFS != nil {
		hostOpts = append(hostOpts, rules.WithHostFS(c.scriptsFS))
	}
	hostOpts = append(hostOpts, rules.WithHostLogger(c.logger))
	host := rules.NewHost(c.Model(), c.scriptsDir, hostOpts...)

	scripts, err := host.ListScripts()
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, script := range scripts {
		if err := host.RunScript(ctx, script); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return host.Emitted(), fmt.Errorf("rule scripts had %d error(s): %w", len(errs), errs[0])
	}
	return host.Emitted(), nil
}

// moduleResolver resolves imports against the checked file set through the
// query cache, so every cross-file read is a recorded dependency edge. An
// import cycle bottoms out in the "infer" query's fallback, and the member
// lookup then degrades to unresolved.
type moduleResolver struct {
	checker *Checker
	cx      *query.Ctx
}

func (r *moduleResolver) ResolveImport(module, name string) (infer.Type, bool) {
	path, ok := r.pathForModule(module)
	if !ok {
		return nil, false
	}
	if name == "" {
		return infer.Module{Name: module}, true
	}
	ix, _ := r.cx.Get("index", path).(*index.SemanticIndex)
	res, _ := r.cx.Get("infer", path).(*infer.Result)
	if ix == nil || res == nil {
		return infer.Unknown{}, true
	}
	scope := ix.Scope(ix.ModuleScope())
	if scope == nil {
		return infer.Unknown{}, true
	}
	sym, found := scope.Symbol(name)
	if !found || len(sym.Bindings) == 0 {
		return nil, false
	}
	return res.BindingType(sym.Bindings[len(sym.Bindings)-1]), true
}

func (r *moduleResolver) pathForModule(module string) (string, bool) {
	paths, _ := r.cx.Input("filelist", "").([]string)
	return matchModulePath(r.checker.root, paths, module)
}

// pathForModule maps a dotted module name to a checked file path.
func (c *Checker) pathForModule(module string) (string, bool) {
	c.mu.Lock()
	paths := make([]string, 0, len(c.contents))
	for p := range c.contents {
		paths = append(paths, p)
	}
	c.mu.Unlock()
	sort.Strings(paths)
	return matchModulePath(c.root, paths, module)
}

func matchModulePath(root string, paths []string, module string) (string, bool) {
	for _, path := range paths {
		if moduleNameForPath(root, path) == module {
			return path, true
		}
	}
	return "", false
}

// moduleNameForPath converts pkg/util.py under root to pkg.util.
func moduleNameForPath(root, path string) string {
	rel := path
	if root != "" {
		if r, ok := strings.CutPrefix(path, strings.TrimSuffix(root, "/")+"/"); ok {
			rel = r
		}
	}
	rel = strings.TrimSuffix(rel, ".py")
	rel = strings.TrimSuffix(rel, "/__init__")
	return strings.ReplaceAll(rel, "/", ".")
}
