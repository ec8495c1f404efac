package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/folioview/folio/internal/buildpath"
	"github.com/folioview/folio/internal/config"
	"github.com/folioview/folio/internal/render"
	"github.com/folioview/folio/internal/typeset"
)

var buildCmd = &cobra.Command{
	Use:   "build [dir]",
	Short: "Typeset the document to PDF",
	Long: `Assemble the entry document once and hand it to the configured
typesetting command. Diagnostics that the preview reports and tolerates
(missing content files, unresolvable stylesheet imports) fail the build.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringP("output", "o", "output", "output directory")
	_ = viper.BindPFlag("build.output_dir", buildCmd.Flags().Lookup("output"))
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	sourceDir := "."
	if len(args) > 0 {
		sourceDir = args[0]
	}
	sourceDir, err = filepath.Abs(sourceDir)
	if err != nil {
		return err
	}

	return buildpath.Run(cmd.Context(), buildpath.Options{
		SourceDir: sourceDir,
		OutputDir: cfg.Build.OutputDir,
		Renderer:  render.Markdown{},
		Engine:    typeset.Command{Argv: cfg.Build.TypesetCommand},
	})
}
