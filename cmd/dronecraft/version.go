package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dronecraft %s (commit %s, built %s)\n",
			version.Version, version.GitSHA, version.BuildTime)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
