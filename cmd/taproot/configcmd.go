package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or initialize the taproot configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a taproot.yaml with the default settings",
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigShow prints the merged configuration: defaults, config file, and
// environment overrides, in the order viper resolved them.
func runConfigShow(cmd *cobra.Command, args []string) error {
	out, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(configFolderPath, configFileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	defaults := map[string]any{
		"rules": map[string]any{
			"disabled":    []string{},
			"scripts_dir": "",
		},
		"run": map[string]any{
			"parallel": true,
			"no_store": false,
		},
		"log": map[string]any{
			"filename":    defaultLogFilename,
			"level":       "info",
			"max_size":    defaultLogMaxSize,
			"max_backups": defaultLogMaxBackups,
			"max_age":     defaultLogMaxAge,
			"compress":    defaultLogCompress,
		},
	}
	out, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("rendering defaults: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
