package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/folioview/folio/internal/manifest"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Scaffold a folio project",
	Long: `Create a project manifest (folio.config.json) and a service
configuration file (.folio.yml) in the target directory. Existing files
are left alone.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	manifestPath := filepath.Join(dir, manifest.Filename)
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		doc := &manifest.Document{
			Title:      filepath.Base(absOrSelf(dir)),
			PageFormat: "A4",
		}
		if err := manifest.WriteInitial(manifestPath, doc); err != nil {
			return fmt.Errorf("writing manifest: %w", err)
		}
		log.Info("created manifest", "path", manifestPath)
	} else {
		log.Info("manifest already exists", "path", manifestPath)
	}

	configPath := filepath.Join(dir, ".folio.yml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		data, err := yaml.Marshal(defaultServiceConfig())
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if err := os.WriteFile(configPath, data, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		log.Info("created service config", "path", configPath)
	} else {
		log.Info("service config already exists", "path", configPath)
	}
	return nil
}

func defaultServiceConfig() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host": "localhost",
			"port": 13000,
			"open": false,
		},
		"preview": map[string]any{
			"debounce":       "300ms",
			"shutdown_grace": "10s",
		},
		"source": map[string]any{
			"ignore_dirs": []string{"node_modules", "dist", "output"},
		},
		"build": map[string]any{
			"output_dir":      "output",
			"typeset_command": []string{},
		},
	}
}

func absOrSelf(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
