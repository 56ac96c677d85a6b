package postgres

import (
	"context"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/webitel/datum-exporter/internal/domain/model/export"
	dberr "github.com/webitel/datum-exporter/internal/errors"
	"github.com/webitel/datum-exporter/internal/store"
	"go.opentelemetry.io/otel/attribute"
)

const datumTable = schema + ".datum"

// DatumStore streams rows of datum_exporter.datum ordered by time.
type DatumStore struct {
	storage *Store
}

// filtered adds the filter predicates to b.
func filtered(b sq.SelectBuilder, f *export.DatumFilter) sq.SelectBuilder {
	if where := datumWhere(f); len(where) > 0 {
		return b.Where(where)
	}
	return b
}

func datumWhere(f *export.DatumFilter) sq.And {
	where := sq.And{}
	if f == nil {
		return where
	}
	if len(f.NodeIDs) > 0 {
		where = append(where, sq.Eq{"node_id": f.NodeIDs})
	}
	if len(f.SourceIDs) > 0 {
		where = append(where, sq.Eq{"source_id": f.SourceIDs})
	}
	if f.StartDate != nil {
		where = append(where, sq.GtOrEq{"created": *f.StartDate})
	}
	if f.EndDate != nil {
		where = append(where, sq.Lt{"created": *f.EndDate})
	}
	return where
}

func (m *DatumStore) BulkExport(ctx context.Context, handler store.DatumHandler, opts store.BulkExportOptions) (*store.BulkExportResult, error) {
	result := &store.BulkExportResult{}
	err := store.ExecuteAndTrace(ctx, "postgres.bulk_export_datum",
		[]attribute.KeyValue{attribute.Bool("filtered", opts.Filter != nil)},
		func(ctx context.Context) error {
			db, err := m.storage.querier(ctx)
			if err != nil {
				return dberr.NewDBInternalError("bulk_export_datum", err)
			}
			countSQL, args, err := filtered(psql.Select("count(*)").From(datumTable), opts.Filter).ToSql()
			if err != nil {
				return dberr.NewDBInternalError("bulk_export_datum", err)
			}
			var total int64
			if err = db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
				return mapError("bulk_export_datum", err)
			}
			handler.DidBegin(&total)

			query, args, err := filtered(psql.
				Select("node_id", "source_id", "created", "samples").
				From(datumTable), opts.Filter).
				OrderBy("created", "node_id", "source_id").
				ToSql()
			if err != nil {
				return dberr.NewDBInternalError("bulk_export_datum", err)
			}

			rows, err := db.Query(ctx, query, args...)
			if err != nil {
				return mapError("bulk_export_datum", err)
			}
			defer rows.Close()

			for rows.Next() {
				var (
					d       export.Datum
					samples []byte
				)
				if err = rows.Scan(&d.NodeID, &d.SourceID, &d.Created, &samples); err != nil {
					return dberr.NewDBInternalError("bulk_export_datum", err)
				}
				if len(samples) > 0 {
					if err = json.Unmarshal(samples, &d.Samples); err != nil {
						return dberr.NewDBInternalError("bulk_export_datum", err)
					}
				}
				res, err := handler.Handle(ctx, &d)
				if err != nil {
					// handler errors keep their identity for failure classification
					return err
				}
				result.Processed++
				if res == store.Stop {
					return nil
				}
			}
			if err = rows.Err(); err != nil {
				return mapError("bulk_export_datum", err)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return result, nil
}
