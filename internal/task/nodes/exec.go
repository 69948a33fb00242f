package nodes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	logx "ticktree/pkg/logx"
)

const maxOutputLog = 512

// Exec runs a command synchronously on every firing. The tick waits for it,
// so a slow command delays the rest of the tree.
type Exec struct {
	Argv    []string
	Timeout time.Duration
	// ContinueOnError logs failures instead of returning them.
	// With it unset a failing command ends the run.
	ContinueOnError bool

	log logx.Logger
}

func NewExec(argv []string, timeout time.Duration, continueOnError bool, log logx.Logger) (*Exec, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("exec: command required")
	}
	if timeout < 0 {
		timeout = 0
	}
	return &Exec{
		Argv:            append([]string(nil), argv...),
		Timeout:         timeout,
		ContinueOnError: continueOnError,
		log:             log,
	}, nil
}

func (e *Exec) Update(parent context.Context, elapsed time.Duration) error {
	ctx := parent
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Argv[0], e.Argv[1:]...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	began := time.Now()
	err := cmd.Run()
	took := time.Since(began)

	fields := []logx.Field{
		logx.String("cmd", e.Argv[0]),
		logx.Duration("took", took),
		logx.Duration("elapsed", elapsed),
		logx.String("output", truncate(strings.TrimSpace(out.String()), maxOutputLog)),
	}
	if err != nil {
		if parent.Err() != nil {
			// Propagate run cancellation so the driver can tell it apart from a failure.
			return parent.Err()
		}
		err = fmt.Errorf("exec %s: %w", e.Argv[0], err)
		if e.ContinueOnError {
			e.log.Warn("command failed", append(fields, logx.Err(err))...)
			return nil
		}
		return err
	}
	e.log.Debug("command ok", fields...)
	return nil
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
