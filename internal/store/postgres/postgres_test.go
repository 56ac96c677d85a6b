package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/datum-exporter/internal/domain/model/export"
	dberr "github.com/webitel/datum-exporter/internal/errors"
)

func TestDatumWhere(t *testing.T) {
	start := time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	query, args, err := filtered(psql.Select("node_id").From(datumTable), &export.DatumFilter{
		NodeIDs:   []int64{1, 2},
		SourceIDs: []string{"meter/1"},
		StartDate: &start,
		EndDate:   &end,
	}).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT node_id FROM datum_exporter.datum WHERE (node_id IN ($1,$2) AND source_id IN ($3) AND created >= $4 AND created < $5)",
		query)
	assert.Equal(t, []any{int64(1), int64(2), "meter/1", start, end}, args)
}

func TestDatumWhereEmptyFilter(t *testing.T) {
	query, args, err := filtered(psql.Select("node_id").From(datumTable), nil).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT node_id FROM datum_exporter.datum", query)
	assert.Empty(t, args)
}

func TestMapError(t *testing.T) {
	err := mapError("store_task", &pgconn.PgError{Code: "23505", Message: "duplicate key", ConstraintName: "export_task_pkey"})
	var unique *dberr.DBUniqueViolationError
	require.True(t, errors.As(err, &unique))
	assert.Equal(t, "export_task_pkey", unique.Column)

	err = mapError("store_task", &pgconn.PgError{Code: "23503", Message: "fk", TableName: "export_task"})
	var fk *dberr.DBForeignKeyViolationError
	require.True(t, errors.As(err, &fk))
	assert.Equal(t, "export_task", fk.ForeignKeyTable)

	cause := errors.New("connection reset by peer")
	err = mapError("get_task", cause)
	var internal *dberr.DBInternalError
	require.True(t, errors.As(err, &internal))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "store.get_task: connection reset by peer", err.Error())
}

func TestStoreNotOpened(t *testing.T) {
	s := New(nil)
	_, err := s.Tasks().Get(t.Context(), "job-1")
	assert.Error(t, err)

	err = s.Transactor().WithinTx(t.Context(), func(ctx context.Context) error { return nil })
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}
