package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/webitel/datum-exporter/internal/domain/model/export"
)

// recordEncoder writes datum to an underlying stream. Close writes any trailer.
type recordEncoder interface {
	WriteRecord(d *export.Datum) error
	Close() error
}

var fixedColumns = []string{"created", "nodeId", "sourceId"}

// datumRow renders d against the sample keys of the header row.
func datumRow(d *export.Datum, keys []string) []string {
	row := make([]string, 0, len(fixedColumns)+len(keys))
	row = append(row, d.Created.UTC().Format(time.RFC3339), fmt.Sprint(d.NodeID), d.SourceID)
	for _, k := range keys {
		v, ok := d.Samples[k]
		if !ok || v == nil {
			row = append(row, "")
			continue
		}
		row = append(row, fmt.Sprint(v))
	}
	return row
}

type csvEncoder struct {
	w      *csv.Writer
	header bool
	keys   []string
	wrote  bool
}

func newCSVEncoder(w io.Writer, props map[string]any) recordEncoder {
	return &csvEncoder{w: csv.NewWriter(w), header: boolProp(props, "includeHeader", true)}
}

func (e *csvEncoder) WriteRecord(d *export.Datum) error {
	if !e.wrote {
		// columns come from the first record
		e.keys = d.SampleKeys()
		e.wrote = true
		if e.header {
			if err := e.w.Write(append(append([]string{}, fixedColumns...), e.keys...)); err != nil {
				return err
			}
		}
	}
	return e.w.Write(datumRow(d, e.keys))
}

func (e *csvEncoder) Close() error {
	e.w.Flush()
	return e.w.Error()
}

type jsonEncoder struct {
	w     io.Writer
	count int
}

func newJSONEncoder(w io.Writer, _ map[string]any) recordEncoder {
	return &jsonEncoder{w: w}
}

func (e *jsonEncoder) WriteRecord(d *export.Datum) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	sep := ","
	if e.count == 0 {
		sep = "["
	}
	if _, err = io.WriteString(e.w, sep); err != nil {
		return err
	}
	e.count++
	_, err = e.w.Write(b)
	return err
}

func (e *jsonEncoder) Close() error {
	if e.count == 0 {
		_, err := io.WriteString(e.w, "[]")
		return err
	}
	_, err := io.WriteString(e.w, "]")
	return err
}

func boolProp(props map[string]any, key string, def bool) bool {
	v, ok := props[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "1"
	default:
		return def
	}
}
