package xbcmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"

	"github.com/function61/gokit/logex"
)

// Runner runs one external invocation to completion. The exec-backed
// implementation is the only one outside of tests.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

type execRunner struct {
	logl *logex.Leveled
}

func NewRunner(logger *log.Logger) Runner {
	return &execRunner{logex.Levels(logger)}
}

func (r *execRunner) Run(ctx context.Context, inv Invocation) error {
	r.logl.Debug.Printf("run: %s", inv.String())

	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", inv.Path, err)
	}

	return nil
}
