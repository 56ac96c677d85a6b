package service

import (
	"maps"
	"slices"

	"github.com/webitel/datum-exporter/internal/domain/model/export"
)

// Registry maps service identifiers to services. It is built once and read concurrently.
type Registry[S Identified] struct {
	byID map[string]S
}

// NewRegistry indexes services by ID. When two services share an ID the first one wins.
func NewRegistry[S Identified](services ...S) *Registry[S] {
	r := &Registry[S]{byID: make(map[string]S, len(services))}
	for _, s := range services {
		id := s.ID()
		if id == "" {
			continue
		}
		if _, ok := r.byID[id]; !ok {
			r.byID[id] = s
		}
	}
	return r
}

// Resolve returns the service named by cfg. The result is absent when the registry or
// the identifier is empty or no service matches.
func (r *Registry[S]) Resolve(cfg export.Identifiable) (S, bool) {
	var zero S
	if r == nil || cfg == nil {
		return zero, false
	}
	id := cfg.ServiceID()
	if id == "" {
		return zero, false
	}
	s, ok := r.byID[id]
	return s, ok
}

func (r *Registry[S]) IDs() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.byID))
}

func (r *Registry[S]) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byID)
}
