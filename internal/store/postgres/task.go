package postgres

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/webitel/datum-exporter/internal/domain/model/export"
	dberr "github.com/webitel/datum-exporter/internal/errors"
	"github.com/webitel/datum-exporter/internal/store"
	"go.opentelemetry.io/otel/attribute"
)

const taskTable = schema + ".export_task"

var taskColumns = []string{
	"id",
	"config",
	"export_date",
	"requester_id",
	"status",
	"success",
	"message",
	"created",
	"completed",
}

// TaskStore keeps one row per export job in datum_exporter.export_task.
type TaskStore struct {
	storage *Store
}

func (m *TaskStore) Store(ctx context.Context, info *export.TaskInfo) error {
	if info == nil {
		return dberr.NewDBInternalError("store_task", errors.New("task info is nil"))
	}
	return store.ExecuteAndTrace(ctx, "postgres.store_task",
		[]attribute.KeyValue{attribute.String("job_id", info.ID), attribute.String("status", info.Status.String())},
		func(ctx context.Context) error {
			db, err := m.storage.querier(ctx)
			if err != nil {
				return dberr.NewDBInternalError("store_task", err)
			}
			config, err := info.Config.Marshal()
			if err != nil {
				return dberr.NewDBInternalError("store_task", err)
			}

			var message *string
			if info.Message != "" {
				message = &info.Message
			}

			query, args, err := psql.
				Insert(taskTable).
				Columns(taskColumns...).
				Values(
					info.ID,
					config,
					info.ExportDate,
					info.RequesterID,
					info.Status.String(),
					info.Success,
					message,
					info.Created,
					info.Completed,
				).
				Suffix(`ON CONFLICT (id) DO UPDATE SET
					status = EXCLUDED.status,
					success = EXCLUDED.success,
					message = EXCLUDED.message,
					completed = EXCLUDED.completed`).
				ToSql()
			if err != nil {
				return dberr.NewDBInternalError("store_task", err)
			}

			if _, err = db.Exec(ctx, query, args...); err != nil {
				return mapError("store_task", err)
			}
			return nil
		})
}

func (m *TaskStore) Get(ctx context.Context, jobID string) (*export.TaskInfo, error) {
	var info *export.TaskInfo
	err := store.ExecuteAndTrace(ctx, "postgres.get_task",
		[]attribute.KeyValue{attribute.String("job_id", jobID)},
		func(ctx context.Context) error {
			db, err := m.storage.querier(ctx)
			if err != nil {
				return dberr.NewDBInternalError("get_task", err)
			}

			query, args, err := psql.
				Select(taskColumns...).
				From(taskTable).
				Where(sq.Eq{"id": jobID}).
				ToSql()
			if err != nil {
				return dberr.NewDBInternalError("get_task", err)
			}

			var (
				t       export.TaskInfo
				config  []byte
				status  string
				message *string
			)
			err = db.QueryRow(ctx, query, args...).Scan(
				&t.ID,
				&config,
				&t.ExportDate,
				&t.RequesterID,
				&status,
				&t.Success,
				&message,
				&t.Created,
				&t.Completed,
			)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return mapError("get_task", err)
			}

			if t.Config, err = export.UnmarshalConfiguration(config); err != nil {
				return dberr.NewDBInternalError("get_task", err)
			}
			t.Status = export.ParseTaskStatus(status)
			if message != nil {
				t.Message = *message
			}
			info = &t
			return nil
		})
	return info, err
}

func (m *TaskStore) DeleteCompleted(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := store.ExecuteAndTrace(ctx, "postgres.delete_completed_tasks", nil,
		func(ctx context.Context) error {
			db, err := m.storage.querier(ctx)
			if err != nil {
				return dberr.NewDBInternalError("delete_completed_tasks", err)
			}

			query, args, err := psql.
				Delete(taskTable).
				Where(sq.Eq{"status": export.TaskStatusCompleted.String()}).
				Where(sq.Lt{"completed": before}).
				ToSql()
			if err != nil {
				return dberr.NewDBInternalError("delete_completed_tasks", err)
			}

			cmd, err := db.Exec(ctx, query, args...)
			if err != nil {
				return mapError("delete_completed_tasks", err)
			}
			deleted = cmd.RowsAffected()
			return nil
		})
	return deleted, err
}
