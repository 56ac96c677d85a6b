package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron"
	"github.com/webitel/datum-exporter/internal/store"
)

const (
	DefaultPurgeInterval = time.Hour
	DefaultMinRetention  = 4 * time.Hour
)

// Purger evicts completed jobs from the registry once they are older than the
// retention window. Jobs that have not completed are never evicted.
type Purger struct {
	registry      *TaskRegistry
	tasks         store.TaskStore
	interval      time.Duration
	minRetention  time.Duration
	taskRetention time.Duration
	now           func() time.Time
	log           *slog.Logger
	cron          *cron.Cron
	// statuses, when set, drops cached snapshots of evicted jobs
	statuses StatusEvicter
}

// StatusEvicter is implemented by publishers that keep the last status of a job.
type StatusEvicter interface {
	DeleteJobStatus(ctx context.Context, jobID string) error
}

// Start schedules the purge. The first run happens one interval after Start.
func (p *Purger) Start() error {
	if p.cron != nil {
		return fmt.Errorf("purger already started")
	}
	c := cron.New()
	if err := c.AddFunc(fmt.Sprintf("@every %s", p.interval), func() { p.Purge(context.Background()) }); err != nil {
		return err
	}
	c.Start()
	p.cron = c
	p.log.Info("datum_exporter.export.purger_started", slog.Duration("interval", p.interval),
		slog.Duration("min_retention", p.minRetention))
	return nil
}

func (p *Purger) Stop() {
	if p.cron == nil {
		return
	}
	p.cron.Stop()
	p.cron = nil
	p.log.Info("datum_exporter.export.purger_stopped")
}

// Purge runs one sweep and returns the number of evicted registry entries.
func (p *Purger) Purge(ctx context.Context) int {
	now := p.now()
	removed := p.registry.RemoveIf(func(h *JobHandle) bool {
		completed, ok := h.w.completedAt()
		return ok && completed.Add(p.minRetention).Before(now)
	})
	if p.statuses != nil {
		for _, id := range removed {
			if err := p.statuses.DeleteJobStatus(ctx, id); err != nil {
				p.log.WarnContext(ctx, "datum_exporter.export.status_evict_failed",
					slog.String("job_id", id), slog.String("error", err.Error()))
			}
		}
	}
	if len(removed) > 0 {
		p.log.InfoContext(ctx, "datum_exporter.export.jobs_purged",
			slog.Int("count", len(removed)), slog.Int("remaining", p.registry.Len()))
	}

	if p.taskRetention > 0 && p.tasks != nil {
		deleted, err := p.tasks.DeleteCompleted(ctx, now.Add(-p.taskRetention))
		if err != nil {
			p.log.WarnContext(ctx, "datum_exporter.export.task_purge_failed", slog.String("error", err.Error()))
		} else if deleted > 0 {
			p.log.InfoContext(ctx, "datum_exporter.export.tasks_deleted", slog.Int64("count", deleted))
		}
	}
	return len(removed)
}
