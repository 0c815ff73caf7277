package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mediaproc/config"
	"mediaproc/task"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// ToolError reports an ffmpeg run that started but did not succeed. Output
// holds everything the process wrote to stdout and stderr.
type ToolError struct {
	Output   string
	Err      error
	TimedOut bool
	Timeout  time.Duration
}

// Error keeps the captured output verbatim so it can be recorded as-is.
func (e *ToolError) Error() string {
	detail := e.Output
	if strings.TrimSpace(detail) == "" {
		detail = e.Err.Error()
	}
	if e.TimedOut {
		return fmt.Sprintf("ffmpeg timed out after %s: %s", e.Timeout, detail)
	}
	return fmt.Sprintf("ffmpeg error: %s", detail)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

type Runner struct {
	cfg        *config.Config
	globalArgs []string
	logger     *zap.Logger
}

var (
	_ task.Invoker      = (*Runner)(nil)
	_ task.ResourceGate = (*Runner)(nil)
)

func NewRunner(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	// Ensure ffmpeg binary is executable
	if _, err := exec.LookPath(cfg.FFBin); err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found or not in PATH: %s", cfg.FFBin)
	}

	globalArgs, err := SplitArgs(cfg.FFGlobalArgs)
	if err != nil {
		return nil, err
	}
	if err := ValidateGlobalArgs(globalArgs); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create output directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		cfg:        cfg,
		globalArgs: globalArgs,
		logger:     logger.Named("ffmpeg"),
	}, nil
}

// Invoke runs op against the task's stored input and returns the output
// filename. Unsupported operations fail before any process is started.
func (r *Runner) Invoke(ctx context.Context, t task.Task, op task.ProcessType, params task.Params) (string, error) {
	inputPath := filepath.Join(r.cfg.UploadDir, t.InputFile)
	command, err := BuildCommand(t, op, params, inputPath, r.cfg.OutputDir)
	if err != nil {
		return "", err
	}

	args := make([]string, 0, len(r.globalArgs)+len(command.Args))
	args = append(args, r.globalArgs...)
	args = append(args, command.Args...)

	cmd := exec.CommandContext(ctx, r.cfg.FFBin, args...)
	var outputBuf bytes.Buffer
	cmd.Stdout = &outputBuf
	cmd.Stderr = &outputBuf

	r.logger.Debug("executing",
		zap.String("task_id", t.ID),
		zap.String("cmd", cmd.Path+" "+strings.Join(args, " ")),
	)

	start := time.Now()
	err = cmd.Run()
	if err != nil {
		toolErr := &ToolError{Output: outputBuf.String(), Err: err}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			toolErr.TimedOut = true
			toolErr.Timeout = r.cfg.FFTimeout
		}
		return "", toolErr
	}

	r.logger.Info("ffmpeg finished",
		zap.String("task_id", t.ID),
		zap.String("output_file", command.OutputFile),
		zap.Duration("elapsed", time.Since(start)),
	)
	return command.OutputFile, nil
}

// CheckResources verifies that the system has enough free resources to start
// a new job. A zero threshold disables that check.
func (r *Runner) CheckResources() error {
	if r.cfg.ThrottleCPU > 0 {
		p, err := cpu.Percent(time.Second, false)
		if err != nil {
			r.logger.Warn("could not get CPU usage", zap.Error(err))
		} else if len(p) > 0 && p[0] > (100.0-r.cfg.ThrottleCPU) {
			return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, Idle threshold: %.2f%%", p[0], r.cfg.ThrottleCPU)
		}
	}

	if r.cfg.ThrottleFreeMem > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			r.logger.Warn("could not get memory usage", zap.Error(err))
		} else if vm.Available < uint64(r.cfg.ThrottleFreeMem) {
			return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, r.cfg.ThrottleFreeMem)
		}
	}

	if r.cfg.ThrottleFreeDisk > 0 {
		d, err := disk.Usage(r.cfg.OutputDir)
		if err != nil {
			r.logger.Warn("could not get disk usage", zap.String("dir", r.cfg.OutputDir), zap.Error(err))
		} else if d.Free < uint64(r.cfg.ThrottleFreeDisk) {
			return fmt.Errorf("not enough free disk space. Available: %d, Required: %d", d.Free, r.cfg.ThrottleFreeDisk)
		}
	}
	return nil
}
