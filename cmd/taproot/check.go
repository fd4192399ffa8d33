package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jward/taproot"
	"github.com/jward/taproot/internal/lint"
)

var (
	flagSerial   bool
	flagNoStore  bool
	flagRulesDir string
	flagDisable  []string
	flagDump     bool
)

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Check a project's Python files",
	Long:  "Parses, indexes, and type-checks every Python file under the given directory, reporting diagnostics. Unchanged files are answered from the results database.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&flagSerial, "serial", false, "disable the parallel file pipeline")
	checkCmd.Flags().BoolVar(&flagNoStore, "no-store", false, "run without the persistent results database")
	checkCmd.Flags().StringVar(&flagRulesDir, "rules-dir", "", "directory of .risor rule scripts to run")
	checkCmd.Flags().StringSliceVar(&flagDisable, "disable", nil, "rule ids to silence (repeatable)")
	checkCmd.Flags().BoolVar(&flagDump, "dump", false, "dump raw results to stderr for debugging")
}

func runCheck(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	repoRoot := findRepoRoot(targetDir)

	opts := []taproot.Option{
		taproot.WithLogger(globalLogger),
		taproot.WithParallel(!flagSerial && viper.GetBool(parallelKey)),
	}

	if !flagNoStore && !viper.GetBool(noStoreKey) {
		dbPath := resolveDBPath(repoRoot)
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
		}
		opts = append(opts, taproot.WithStorePath(dbPath))
	}

	rulesDir := flagRulesDir
	if rulesDir == "" {
		rulesDir = viper.GetString(scriptsDirKey)
	}
	if rulesDir != "" {
		opts = append(opts, taproot.WithRulesDir(rulesDir))
	}

	checker, err := taproot.New(repoRoot, opts...)
	if err != nil {
		return fmt.Errorf("creating checker: %w", err)
	}
	defer checker.Close()

	ctx := context.Background()
	results, err := checker.CheckDirectory(ctx, targetDir)
	if err != nil {
		return outputError(fmt.Errorf("checking: %w", err))
	}

	scriptDiags, err := checker.RunRuleScripts(ctx)
	if err != nil {
		return outputError(fmt.Errorf("rule scripts: %w", err))
	}

	selection, err := buildSelection()
	if err != nil {
		return err
	}

	if flagDump {
		spew.Fdump(os.Stderr, results)
	}

	shown := formatResults(os.Stdout, flagFormat, results, scriptDiags, selection)
	problemsFound = shown > 0

	fmt.Fprintf(os.Stderr, "Checked %d file(s) in %s, %d problem(s)\n",
		len(results), time.Since(start).Round(time.Millisecond), shown)
	return nil
}

// buildSelection folds --disable flags and config into a rule selection.
func buildSelection() (*lint.Selection, error) {
	selection := lint.NewSelection(lint.DefaultRegistry())
	disabled := flagDisable
	disabled = append(disabled, viper.GetStringSlice(disabledRulesKey)...)
	for _, id := range disabled {
		if err := selection.Disable(id); err != nil {
			return nil, err
		}
	}
	return selection, nil
}

// resolveTargetDir returns the absolute path of the directory to check.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory. Returns
// the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(repoRoot string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(repoRoot, flagDB)
	}
	return filepath.Join(repoRoot, ".taproot", "results.db")
}
