package analyzer

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/rs/zerolog"
)

// runner executes a command in dir and reports its split output and exit
// code. Swapped out in tests.
type runner func(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, exitCode int, err error)

// Terraform validates a workspace by shelling out to the terraform binary.
// Diagnostics are whatever the tool printed; parsing happens downstream.
type Terraform struct {
	run runner
}

func NewTerraform() *Terraform {
	return &Terraform{run: execRun}
}

func (t *Terraform) Name() string { return "terraform" }

func (t *Terraform) Analyze(ctx context.Context, in Input) (Report, error) {
	if in.Dir == "" {
		return Report{}, nil
	}

	// init failures are tolerated, validate can still produce diagnostics
	if _, stderr, code, err := t.run(ctx, in.Dir, "terraform", "init", "-backend=false", "-input=false"); err != nil || code != 0 {
		zerolog.Ctx(ctx).Warn().Err(err).Int("exit_code", code).Str("stderr", stderr).
			Msg("terraform init failed")
	}

	_, stderr, code, err := t.run(ctx, in.Dir, "terraform", "validate", "-no-color")
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("terraform validate could not run")
		return Report{}, nil
	}
	if code == 0 {
		return Report{}, nil
	}
	return Report{Raw: stderr}, nil
}

func execRun(ctx context.Context, dir, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return "", "", 0, err
	}
	return stdout.String(), stderr.String(), 0, nil
}
