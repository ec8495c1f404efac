package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/folioview/folio/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Printf("folio %s (%s, %s, %s)\n",
			info.Version, info.GitCommit, info.GoVersion, info.Platform)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
