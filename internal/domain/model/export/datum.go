package export

import (
	"maps"
	"slices"
	"time"
)

// Datum is one time-series record of a source on a node.
type Datum struct {
	NodeID   int64          `json:"nodeId"`
	SourceID string         `json:"sourceId"`
	Created  time.Time      `json:"created"`
	Samples  map[string]any `json:"samples,omitempty"`
}

// SampleKeys returns the sample property names in sorted order.
func (d *Datum) SampleKeys() []string {
	if d == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(d.Samples))
}
