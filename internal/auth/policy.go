package auth

import (
	"context"
	"fmt"
	"slices"

	goi18n "github.com/nicksnyder/go-i18n/i18n"
	"github.com/webitel/datum-exporter/internal/domain/model/export"
	"github.com/webitel/datum-exporter/internal/errors"
	"github.com/webitel/datum-exporter/internal/store"
)

const (
	NodeAccessDeniedID   = "export.policy.node_access_denied"
	SourceAccessDeniedID = "export.policy.source_access_denied"
)

type policyKey struct{}

// WithPolicy attaches the requester's security policy to ctx.
func WithPolicy(ctx context.Context, p *export.SecurityPolicy) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, policyKey{}, p)
}

func PolicyFromContext(ctx context.Context) (*export.SecurityPolicy, bool) {
	p, ok := ctx.Value(policyKey{}).(*export.SecurityPolicy)
	return p, ok && p != nil
}

// Restrict narrows f to the entities p allows. An empty policy set allows everything,
// an empty filter set asks for everything the policy allows. It fails when the
// requested entities and the allowed ones do not intersect.
func Restrict(p *export.SecurityPolicy, f *export.DatumFilter) (*export.DatumFilter, error) {
	out := f.Clone()
	if out == nil {
		out = &export.DatumFilter{}
	}
	if p == nil {
		return out, nil
	}

	if len(p.NodeIDs) > 0 {
		nodes, ok := intersect(out.NodeIDs, p.NodeIDs)
		if !ok {
			err := errors.NewPermissionForbiddenError(NodeAccessDeniedID,
				fmt.Sprintf("access to nodes %v is not permitted", out.NodeIDs))
			err.SetTranslationParams(map[string]any{"Nodes": out.NodeIDs})
			return nil, err
		}
		out.NodeIDs = nodes
	}
	if len(p.SourceIDs) > 0 {
		sources, ok := intersect(out.SourceIDs, p.SourceIDs)
		if !ok {
			err := errors.NewPermissionForbiddenError(SourceAccessDeniedID,
				fmt.Sprintf("access to sources %v is not permitted", out.SourceIDs))
			err.SetTranslationParams(map[string]any{"Sources": out.SourceIDs})
			return nil, err
		}
		out.SourceIDs = sources
	}
	return out, nil
}

func intersect[T comparable](requested, allowed []T) ([]T, bool) {
	if len(requested) == 0 {
		return slices.Clone(allowed), true
	}
	var out []T
	for _, v := range requested {
		if slices.Contains(allowed, v) {
			out = append(out, v)
		}
	}
	return out, len(out) > 0
}

// DatumStore enforces the policy found in the context before delegating to the wrapped store.
type DatumStore struct {
	next store.DatumStore
	tr   goi18n.TranslateFunc
}

// NewDatumStore wraps next. tr localizes authorization errors and may be nil.
func NewDatumStore(next store.DatumStore, tr goi18n.TranslateFunc) *DatumStore {
	return &DatumStore{next: next, tr: tr}
}

func (s *DatumStore) BulkExport(ctx context.Context, handler store.DatumHandler, opts store.BulkExportOptions) (*store.BulkExportResult, error) {
	p, ok := PolicyFromContext(ctx)
	if !ok {
		return s.next.BulkExport(ctx, handler, opts)
	}
	filter, err := Restrict(p, opts.Filter)
	if err != nil {
		if authErr, ok := err.(errors.AuthError); ok {
			authErr.Translate(s.tr)
		}
		return nil, err
	}
	opts.Filter = filter
	return s.next.BulkExport(ctx, handler, opts)
}
