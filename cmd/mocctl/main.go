// Command mocctl classifies risk and renders risk reports from the command
// line, locally or against a running MOC Studio gRPC endpoint.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
