package destination

import (
	"context"
	"sync"

	"github.com/webitel/datum-exporter/internal/domain/model/export"
	"github.com/webitel/datum-exporter/internal/service"
)

// NullService accepts resources and only counts them.
type NullService struct {
	mu        sync.Mutex
	calls     int
	resources []string
}

func NewNullService() *NullService { return &NullService{} }

func (s *NullService) ID() string          { return "null" }
func (s *NullService) DisplayName() string { return "Discard" }

func (s *NullService) Export(
	ctx context.Context,
	_ *export.DestinationConfiguration,
	resources []export.Resource,
	_ service.RuntimeProperties,
	progress service.ProgressListener,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.calls++
	for _, r := range resources {
		s.resources = append(s.resources, r.Name())
	}
	s.mu.Unlock()
	if progress != nil {
		progress(1)
	}
	return nil
}

// Exported returns the names of all resources seen so far.
func (s *NullService) Exported() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.resources...)
}

func (s *NullService) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
