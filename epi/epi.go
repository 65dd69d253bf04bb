package epi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"golang.org/x/sync/errgroup"
)

// InspectionURL builds the f5-epi:// link the portal expects the endpoint
// inspector to be launched with.
func InspectionURL(server, sid string) string {
	return fmt.Sprintf("f5-epi://%s?server=%s&protocol=https&port=443&sid=%s", server, server, url.QueryEscape(sid))
}

type Result struct {
	ExitCode int
	Stdout   []string
	Stderr   []string
}

type Runner struct {
	logger log.Logger
}

func NewRunner(logger log.Logger) *Runner {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Runner{logger: log.With(logger, "component", "epi")}
}

// Run starts argv with env (os.Environ() when nil) and blocks until the
// child has exited and both of its output streams are drained. Each line is
// logged as it arrives. A non-zero exit status is reported in the Result,
// not as an error.
func (r *Runner) Run(ctx context.Context, argv []string, env []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty inspector command")
	}
	if env == nil {
		env = os.Environ()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("could not create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("could not create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start %s: %w", argv[0], err)
	}
	level.Debug(r.logger).Log("msg", "started endpoint inspector", "pid", cmd.Process.Pid)

	res := &Result{}
	var g errgroup.Group
	g.Go(func() error { return r.drain(stdout, "stdout", &res.Stdout) })
	g.Go(func() error { return r.drain(stderr, "stderr", &res.Stderr) })

	// Wait closes the pipes, so every reader has to be finished first.
	drainErr := g.Wait()
	waitErr := cmd.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("waiting for endpoint inspector: %w", waitErr)
	}
	if drainErr != nil {
		return res, fmt.Errorf("reading endpoint inspector output: %w", drainErr)
	}

	level.Info(r.logger).Log("msg", "🔍 Endpoint inspector finished", "exit_code", res.ExitCode)
	return res, nil
}

// drain reads rd to EOF. Lines have no length limit: a reader that stops
// early would leave the child blocked on a full pipe.
func (r *Runner) drain(rd io.Reader, stream string, lines *[]string) error {
	logger := log.With(r.logger, "stream", stream)
	br := bufio.NewReader(rd)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			*lines = append(*lines, line)
			level.Info(logger).Log("msg", "🔍 [EPI]: "+line)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			io.Copy(io.Discard, rd)
			return err
		}
	}
}
