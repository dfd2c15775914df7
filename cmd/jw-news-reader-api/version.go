package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the jw-news-reader-api version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("jw-news-reader-api %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
