package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/webitel/datum-exporter/internal/domain/model/export"
	"github.com/webitel/datum-exporter/internal/service"
	"github.com/webitel/datum-exporter/internal/util/pdf/maroto"
)

// PDFService renders datum as a table. The whole document is built in memory on Finish.
type PDFService struct {
	log *slog.Logger
	now func() time.Time
}

func NewPDFService(log *slog.Logger) *PDFService {
	if log == nil {
		log = slog.Default()
	}
	return &PDFService{log: log, now: time.Now}
}

func (s *PDFService) ID() string          { return "pdf" }
func (s *PDFService) DisplayName() string { return "PDF" }
func (s *PDFService) ContentType() string { return "application/pdf" }
func (s *PDFService) Extension() string   { return ".pdf" }

func (s *PDFService) CreateExportContext(_ context.Context, cfg *export.OutputConfiguration) (service.ExportContext, error) {
	if cfg == nil {
		cfg = &export.OutputConfiguration{ServiceIdentifier: s.ID()}
	}
	title, _ := cfg.ServiceProperties["title"].(string)
	if title == "" {
		title = "Datum export"
	}
	return &pdfContext{svc: s, cfg: cfg, title: title}, nil
}

type pdfContext struct {
	svc      *PDFService
	cfg      *export.OutputConfiguration
	title    string
	started  bool
	done     bool
	estimate int64
	rows     [][]string
}

func (c *pdfContext) Start(_ context.Context, estimatedCount *int64) error {
	if c.started {
		return errors.New("export context already started")
	}
	c.started = true
	if estimatedCount != nil {
		c.estimate = *estimatedCount
		if c.estimate > 0 && c.estimate < 1<<16 {
			c.rows = make([][]string, 0, c.estimate)
		}
	}
	return nil
}

func (c *pdfContext) AppendRecords(ctx context.Context, records []*export.Datum, progress service.ProgressListener) error {
	if !c.started || c.done {
		return errors.New("export context not started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, d := range records {
		if d == nil {
			continue
		}
		c.rows = append(c.rows, pdfRow(d))
	}
	if progress != nil && c.estimate > 0 {
		progress(float64(len(records)) / float64(c.estimate))
	}
	return nil
}

func pdfRow(d *export.Datum) []string {
	keys := d.SampleKeys()
	samples := make([]string, 0, len(keys))
	for _, k := range keys {
		samples = append(samples, fmt.Sprintf("%s=%v", k, d.Samples[k]))
	}
	return []string{
		d.Created.UTC().Format("2006-01-02 15:04:05"),
		fmt.Sprint(d.NodeID),
		d.SourceID,
		strings.Join(samples, ", "),
	}
}

func (c *pdfContext) Finish(_ context.Context) ([]export.Resource, error) {
	if !c.started || c.done {
		return nil, errors.New("export context not started")
	}
	c.done = true
	if len(c.rows) == 0 {
		return nil, nil
	}
	now := c.svc.now()
	doc, err := maroto.GenerateTablePDF(maroto.Table{
		Title:    c.title,
		Subtitle: fmt.Sprintf("%d records, generated %s", len(c.rows), now.UTC().Format(time.RFC3339)),
		Header:   []string{"Created", "Node", "Source", "Samples"},
		Rows:     c.rows,
	})
	if err != nil {
		return nil, err
	}
	c.rows = nil

	var buf bytes.Buffer
	w, err := compressor(&buf, c.cfg.CompressionType)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(doc); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	meta := export.ResourceMeta{
		Filename: "datum-export.pdf" + c.cfg.CompressionType.FileSuffix(),
		Type:     c.svc.ContentType(),
		Encoding: c.cfg.CompressionType.ContentEncoding(),
		Modified: now,
	}
	return []export.Resource{export.NewBytesResource(meta, buf.Bytes())}, nil
}

func (c *pdfContext) Close() error {
	c.rows = nil
	c.done = true
	return nil
}
