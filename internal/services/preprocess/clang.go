package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
)

var whitespaceStripper = strings.NewReplacer(" ", "", "\t", "", "\r", "", "\n", "")

// InvocationError describes a failed preprocessor run with enough context
// to publish a useful error log entry.
type InvocationError struct {
	Command string
	Path    string
	Stderr  string
	Err     error
}

func (e *InvocationError) Error() string {
	msg := fmt.Sprintf("%s failed for %s: %v", e.Command, e.Path, e.Err)
	if e.Stderr != "" {
		msg += ": " + firstLine(e.Stderr)
	}
	return msg
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

// Clang runs the system C preprocessor over keymap sources. Only -E style
// expansion is wanted: comments go away and textual macros are expanded,
// but nothing is compiled. The output is flattened to a single
// whitespace-free string for pattern extraction.
//
// A nonzero exit with output still on stdout is tolerated, since keymap
// sources routinely fail to find firmware-internal includes while the
// parts the extractor needs expand fine.
type Clang struct {
	command string
	args    []string
	timeout time.Duration
	logger  arbor.ILogger
}

// Compile-time assertion
var _ interfaces.Preprocessor = (*Clang)(nil)

// NewClang creates a preprocessor from the extract configuration.
func NewClang(config *common.ExtractConfig, logger arbor.ILogger) *Clang {
	command := config.Preprocessor
	if command == "" {
		command = "clang"
	}

	args := config.PreprocessorArgs
	if len(args) == 0 {
		args = []string{"-E"}
	}

	if logger == nil {
		logger = common.GetLogger()
	}

	return &Clang{
		command: command,
		args:    args,
		timeout: common.ParseDurationOr(config.PreprocessorTimeout, 30*time.Second),
		logger:  logger,
	}
}

// Flatten preprocesses path and returns the output with all whitespace
// removed.
func (c *Clang) Flatten(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string(nil), c.args...), path)
	cmd := exec.CommandContext(ctx, c.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() != nil {
		return "", &InvocationError{Command: c.command, Path: path, Stderr: stderr.String(), Err: ctx.Err()}
	}
	if err != nil {
		if stdout.Len() == 0 {
			return "", &InvocationError{Command: c.command, Path: path, Stderr: stderr.String(), Err: err}
		}
		c.logger.Debug().Str("file", path).Err(err).Msg("Preprocessor exited nonzero, keeping its output")
	}

	return whitespaceStripper.Replace(stdout.String()), nil
}
