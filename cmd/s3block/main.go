// Command s3block runs and administers an S3-backed block device.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/s3block/cmd/s3block/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
