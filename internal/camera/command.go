package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds one run of the still-capture tool.
const DefaultCommandTimeout = 10 * time.Second

// Runner runs an external program and returns its stderr.
type Runner func(ctx context.Context, name string, args ...string) (stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// CommandProvider captures by running rpicam-still or libcamera-still.
type CommandProvider struct {
	Tool    string
	Timeout time.Duration
	run     Runner
}

// NewCommandProvider creates a provider for the given tool.
func NewCommandProvider(tool string) *CommandProvider {
	return &CommandProvider{Tool: tool, Timeout: DefaultCommandTimeout, run: execRunner}
}

// Name implements Provider.
func (c *CommandProvider) Name() string { return SourceCommand }

// Capture implements Provider.
func (c *CommandProvider) Capture(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	args := []string{"-o", path, "-t", "500", "--immediate", "-q", "90", "-n"}
	log.Printf("camera: running %s %s", c.Tool, strings.Join(args, " "))
	stderr, err := c.run(ctx, c.Tool, args...)
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return fmt.Errorf("%s not available: %w", c.Tool, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s timed out after %v", c.Tool, c.Timeout)
	case err != nil:
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%s failed: %s", c.Tool, msg)
	}

	fi, err := os.Stat(path)
	if err != nil || fi.Size() == 0 {
		return fmt.Errorf("%s did not create file", c.Tool)
	}
	return nil
}
