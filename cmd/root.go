// Package cmd provides the command-line interface for folio with
// configuration loading from multiple sources.
//
// Configuration precedence (highest to lowest):
//  1. Command-line flags (--config, --port, ...)
//  2. FOLIO_CONFIG_FILE environment variable (custom config file path)
//  3. Individual environment variables (FOLIO_SERVER_PORT, ...)
//  4. Configuration file (.folio.yml in the working directory)
package cmd

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Live browser preview and PDF builds for paged documents",
	Long: `Folio turns a folder of Markdown content and CSS into a continuously
updated browser preview while you edit, and typesets the same document to
PDF on the build path.

Quick Start:
  folio init                      Scaffold a project
  folio preview                   Start the live preview
  folio build                     Typeset the document to PDF`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch viper.GetString("log-level") {
		case "debug":
			log.SetLevel(log.DebugLevel)
		case "warn":
			log.SetLevel(log.WarnLevel)
		case "error":
			log.SetLevel(log.ErrorLevel)
		default:
			log.SetLevel(log.InfoLevel)
		}
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .folio.yml, can also use FOLIO_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("FOLIO_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".folio")
	}

	viper.SetEnvPrefix("FOLIO")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		log.Debug("using config file", "path", viper.ConfigFileUsed())
	}
}
