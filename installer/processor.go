package installer

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/craftfall/anvil/types"
)

// maxStderrCapture bounds how much processor stderr an error carries.
const maxStderrCapture = 4 * 1024

// runTransform executes one external transform (a forge processor step
// or the optifine helper) and classifies failure as ProcessorStepError.
func (d *Deps) runTransform(ctx context.Context, step string, args []string) error {
	java := d.java()
	d.logger().Debug("running external transform", map[string]any{
		"step": step,
		"java": java,
		"args": strings.Join(args, " "),
	})

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, java, args...)
	cmd.Stderr = &stderr

	d.Collector.IncProcessorStepRun()
	if err := cmd.Run(); err != nil {
		d.Collector.IncProcessorStepFailed()
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &ProcessorStepError{
			Step:     step,
			ExitCode: exitCode,
			Stderr:   truncate(stderr.String(), maxStderrCapture),
			Err:      err,
		}
	}

	d.Progress.Emit(types.ProgressEvent{Kind: types.ProgressStep, Step: step})
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
