// Command channelsync runs the marketplace sync jobs: taxonomy discovery,
// attribute inheritance, integrity validation and link migration.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/erp/channelsync/internal/interfaces/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.ExitCode(err))
}
