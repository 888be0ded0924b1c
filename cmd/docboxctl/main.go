package main

import (
	"fmt"
	"os"

	"github.com/Knowmad79/Docbox2026"
	"github.com/Knowmad79/Docbox2026/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	root := cli.RootCmd(version, docbox.NewLLMClient)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
