package task

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediaproc/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper periodically removes orphaned files from the output directory:
// partial outputs of failed runs and anything else no completed task points
// at. Completed outputs and files of tasks still processing are left alone.
// Ledger records are never touched.
type Sweeper struct {
	cfg      *config.Config
	registry *Registry
	cron     *cron.Cron
	logger   *zap.Logger
	now      func() time.Time
}

func NewSweeper(cfg *config.Config, registry *Registry, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		cfg:      cfg,
		registry: registry,
		cron:     cron.New(),
		logger:   logger.Named("sweeper"),
		now:      time.Now,
	}
}

// Start schedules Sweep on CLEANUP_SCHEDULE until ctx is done. An empty
// schedule disables sweeping.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.cfg.CleanupSchedule == "" {
		s.logger.Info("output sweeping disabled")
		return nil
	}
	_, err := s.cron.AddFunc(s.cfg.CleanupSchedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("output sweeper started", zap.String("schedule", s.cfg.CleanupSchedule))

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Info("output sweeper stopped")
	}()
	return nil
}

// Sweep performs one pass and returns how many files were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	tasks, err := s.registry.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	referenced := make(map[string]bool)
	var running []string
	for _, t := range tasks {
		switch t.Status {
		case StatusCompleted:
			referenced[t.OutputFile] = true
		case StatusProcessing:
			running = append(running, t.ID+"_")
		}
	}

	entries, err := os.ReadDir(s.cfg.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := s.now().Add(-s.cfg.OutputOrphanLifetime)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || referenced[name] || hasAnyPrefix(name, running) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.OutputDir, name)); err != nil {
			s.logger.Warn("could not remove orphaned output", zap.String("file", name), zap.Error(err))
			continue
		}
		s.logger.Info("removed orphaned output", zap.String("file", name))
		removed++
	}
	return removed, nil
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
