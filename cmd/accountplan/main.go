package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "accountplan"}

	root.AddCommand(serveCMD(), askCMD(), reportCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
