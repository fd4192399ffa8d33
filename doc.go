// Package taproot is an incremental semantic analyzer and type-inference
// engine for Python, built on tree-sitter. It answers "what is the type of
// this expression" and "which names are broken in this file" without running
// the program, and it answers them incrementally: after an edit, only the
// queries whose inputs actually changed are recomputed.
//
// # Pipeline
//
// Every file flows through four derived queries, each memoized in the
// dependency-tracking cache:
//
//  1. parse: tree-sitter concrete syntax tree plus syntax-error list. The
//     grammar's error recovery means malformed input still parses.
//
//  2. index: a single walk of the tree builds the scope tree, the binding
//     and expression arenas, the predicate arena for flow-sensitive
//     narrowing, and the use table mapping each name read to its live
//     bindings.
//
//  3. infer: types for every binding, expression, and use. Class
//     hierarchies get C3 linearization and slot-layout checks; unresolvable
//     constructs degrade to the absorptive Unknown type instead of
//     cascading diagnostics.
//
//  4. diagnostics: the inference diagnostics merged with syntax errors and
//     matched against inline suppression comments.
//
// Cross-file imports resolve through the same cache, so a change to one
// module invalidates exactly the dependents that read it, and an import
// cycle degrades to Unknown instead of faulting.
//
// # Usage
//
// Create a Checker, check files, read diagnostics:
//
//	c, err := taproot.New("path/to/project")
//	if err != nil { ... }
//	defer c.Close()
//
//	results, err := c.Check(ctx, paths)
//	for _, r := range results {
//		for _, d := range r.Diagnostics {
//			fmt.Println(d)
//		}
//	}
//
// With WithStorePath, results persist in SQLite between runs: a file whose
// content hash and import hashes are unchanged is answered from the store
// without re-parsing.
//
// Scripted lint rules in Risor run against the semantic model via
// WithRulesDir or WithRulesFS; see the rules package for the host functions
// scripts receive.
package taproot
