package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "guidekg"}

	root.AddCommand(serveCMD(), processCMD(), migrateCMD())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
