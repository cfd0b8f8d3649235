package installer

import "fmt"

// ProcessorStepError reports a failed external transform during an
// installation: a forge post-processor or the optifine helper. It
// carries the step identity and exit information so a failure is
// diagnosable without re-running verbose.
type ProcessorStepError struct {
	// Step identifies the transform, usually the maven coordinate of
	// the processor jar.
	Step string
	// ExitCode is the process exit code, -1 when the process did not
	// start or was killed.
	ExitCode int
	// Stderr holds the captured standard error, truncated.
	Stderr string
	// Err is the underlying execution error, if any.
	Err error
}

func (e *ProcessorStepError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("processor step %s failed (exit %d): %s", e.Step, e.ExitCode, e.Stderr)
	}
	if e.Err != nil {
		return fmt.Sprintf("processor step %s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("processor step %s failed (exit %d)", e.Step, e.ExitCode)
}

// Unwrap exposes the underlying error for errors.Is/As traversal.
func (e *ProcessorStepError) Unwrap() error {
	return e.Err
}
