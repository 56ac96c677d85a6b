package destination

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/webitel/datum-exporter/internal/domain/model/export"
	"github.com/webitel/datum-exporter/internal/service"
)

const defaultLocalPath = "{name}/{date}-{jobId}{ext}"

// LocalDirService copies resources below a base directory.
// The "path" property is a template expanded with the runtime properties.
type LocalDirService struct {
	baseDir string
	log     *slog.Logger
}

func NewLocalDirService(baseDir string, log *slog.Logger) *LocalDirService {
	if log == nil {
		log = slog.Default()
	}
	return &LocalDirService{baseDir: baseDir, log: log}
}

func (s *LocalDirService) ID() string          { return "local" }
func (s *LocalDirService) DisplayName() string { return "Local directory" }

func (s *LocalDirService) Export(
	ctx context.Context,
	cfg *export.DestinationConfiguration,
	resources []export.Resource,
	props service.RuntimeProperties,
	progress service.ProgressListener,
) error {
	if s.baseDir == "" {
		return fmt.Errorf("local destination directory not configured")
	}
	tmpl := stringProp(cfg, "path", defaultLocalPath)
	for i, r := range resources {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := s.resolve(indexedName(props.Expand(tmpl), i, len(resources)))
		if err != nil {
			return err
		}
		n, err := s.copy(r, target)
		if err != nil {
			return err
		}
		s.log.DebugContext(ctx, "datum_exporter.destination.local.written",
			slog.String("path", target), slog.Int64("bytes", n))
		if progress != nil {
			progress(1 / float64(len(resources)))
		}
	}
	return nil
}

// resolve keeps the target inside the base directory.
func (s *LocalDirService) resolve(rel string) (string, error) {
	base, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", err
	}
	target := filepath.Join(base, filepath.Clean("/"+rel))
	if target != base && !strings.HasPrefix(target, base+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes destination directory", rel)
	}
	return target, nil
}

func (s *LocalDirService) copy(r export.Resource, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	src, err := r.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}
