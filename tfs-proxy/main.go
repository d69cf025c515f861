// main package of the tfs-proxy.
package main

import (
	"context"
	"os"
	"syscall"

	"github.com/edgelesssys/sagemaker-tfs/internal/process"
	"github.com/edgelesssys/sagemaker-tfs/tfs-proxy/cmd"
)

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}

func execute() error {
	ctx, cancel := process.SignalContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := cmd.New()
	return cmd.ExecuteContext(ctx)
}
