package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "ragserve"}

	root.AddCommand(serveCMD(), workerCMD(), migrateCMD(), ingestCMD())
	_ = root.Execute()
}
