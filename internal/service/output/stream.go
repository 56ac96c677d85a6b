package output

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/webitel/datum-exporter/internal/domain/model/export"
	"github.com/webitel/datum-exporter/internal/service"
)

type encoderFactory func(w io.Writer, props map[string]any) recordEncoder

// StreamService encodes records straight into a temporary file.
type StreamService struct {
	id          string
	displayName string
	contentType string
	ext         string
	tempDir     string
	newEncoder  encoderFactory
	log         *slog.Logger
}

// NewCSVService returns the "csv" output format. Columns are taken from the first record.
func NewCSVService(tempDir string, log *slog.Logger) *StreamService {
	return newStreamService("csv", "CSV", "text/csv", ".csv", tempDir, newCSVEncoder, log)
}

// NewJSONService returns the "json" output format, a single JSON array of datum.
func NewJSONService(tempDir string, log *slog.Logger) *StreamService {
	return newStreamService("json", "JSON", "application/json", ".json", tempDir, newJSONEncoder, log)
}

func newStreamService(id, name, contentType, ext, tempDir string, f encoderFactory, log *slog.Logger) *StreamService {
	if log == nil {
		log = slog.Default()
	}
	return &StreamService{
		id:          id,
		displayName: name,
		contentType: contentType,
		ext:         ext,
		tempDir:     tempDir,
		newEncoder:  f,
		log:         log,
	}
}

func (s *StreamService) ID() string          { return s.id }
func (s *StreamService) DisplayName() string { return s.displayName }
func (s *StreamService) ContentType() string { return s.contentType }
func (s *StreamService) Extension() string   { return s.ext }

func (s *StreamService) CreateExportContext(_ context.Context, cfg *export.OutputConfiguration) (service.ExportContext, error) {
	if cfg == nil {
		cfg = &export.OutputConfiguration{ServiceIdentifier: s.id}
	}
	return &streamContext{svc: s, cfg: cfg}, nil
}

type streamContext struct {
	svc      *StreamService
	cfg      *export.OutputConfiguration
	file     *os.File
	comp     io.WriteCloser
	enc      recordEncoder
	estimate int64
	count    int64
	done     bool
}

func (c *streamContext) Start(_ context.Context, estimatedCount *int64) error {
	if c.file != nil {
		return errors.New("export context already started")
	}
	if estimatedCount != nil {
		c.estimate = *estimatedCount
	}
	f, err := os.CreateTemp(c.svc.tempDir, "datum-export-*"+c.svc.ext)
	if err != nil {
		return err
	}
	comp, err := compressor(f, c.cfg.CompressionType)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return err
	}
	c.file, c.comp = f, comp
	c.enc = c.svc.newEncoder(comp, c.cfg.ServiceProperties)
	return nil
}

func (c *streamContext) AppendRecords(ctx context.Context, records []*export.Datum, progress service.ProgressListener) error {
	if c.enc == nil || c.done {
		return errors.New("export context not started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, d := range records {
		if d == nil {
			continue
		}
		if err := c.enc.WriteRecord(d); err != nil {
			return err
		}
		c.count++
	}
	if progress != nil && c.estimate > 0 {
		progress(float64(len(records)) / float64(c.estimate))
	}
	return nil
}

func (c *streamContext) Finish(_ context.Context) ([]export.Resource, error) {
	if c.enc == nil || c.done {
		return nil, errors.New("export context not started")
	}
	if err := c.flush(); err != nil {
		return nil, err
	}
	c.done = true
	path := c.file.Name()
	c.file = nil
	if c.count == 0 {
		_ = os.Remove(path)
		return nil, nil
	}
	st, err := os.Stat(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	meta := export.ResourceMeta{
		Filename: "datum-export" + c.svc.ext + c.cfg.CompressionType.FileSuffix(),
		Type:     c.svc.contentType,
		Encoding: c.cfg.CompressionType.ContentEncoding(),
		Modified: st.ModTime(),
	}
	c.svc.log.Debug("datum_exporter.output.finished",
		slog.String("format", c.svc.id), slog.Int64("records", c.count), slog.Int64("bytes", st.Size()))
	return []export.Resource{export.NewFileResource(meta, path, st.Size())}, nil
}

func (c *streamContext) flush() error {
	err := errors.Join(c.enc.Close(), c.comp.Close())
	if cerr := c.file.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
		err = errors.Join(err, cerr)
	}
	return err
}

// Close discards the temporary file unless Finish handed it over.
func (c *streamContext) Close() error {
	if c.done || c.file == nil {
		return nil
	}
	path := c.file.Name()
	_ = c.flush()
	c.file = nil
	c.done = true
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

