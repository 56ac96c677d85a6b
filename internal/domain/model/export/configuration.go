package export

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/webitel/datum-exporter/internal/errors"
)

// CompressionType selects the compression applied to output resources.
type CompressionType string

const (
	CompressionNone CompressionType = "NONE"
	CompressionGzip CompressionType = "GZIP"
	CompressionZstd CompressionType = "ZSTD"
)

// ContentEncoding returns the HTTP content encoding token, empty for CompressionNone.
func (c CompressionType) ContentEncoding() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	default:
		return ""
	}
}

// FileSuffix returns the file name suffix for the compression, including the dot.
func (c CompressionType) FileSuffix() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// DatumFilter selects the datum to export.
type DatumFilter struct {
	NodeIDs   []int64    `json:"nodeIds,omitempty"`
	SourceIDs []string   `json:"sourceIds,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// HasDateRange reports whether both ends of the date range are set.
func (f *DatumFilter) HasDateRange() bool {
	return f != nil && f.StartDate != nil && f.EndDate != nil
}

func (f *DatumFilter) Clone() *DatumFilter {
	if f == nil {
		return nil
	}
	c := &DatumFilter{
		NodeIDs:   slices.Clone(f.NodeIDs),
		SourceIDs: slices.Clone(f.SourceIDs),
	}
	if f.StartDate != nil {
		d := *f.StartDate
		c.StartDate = &d
	}
	if f.EndDate != nil {
		d := *f.EndDate
		c.EndDate = &d
	}
	return c
}

// Matches reports whether d passes the filter. The date range is half-open.
func (f *DatumFilter) Matches(d *Datum) bool {
	if f == nil {
		return true
	}
	if len(f.NodeIDs) > 0 && !slices.Contains(f.NodeIDs, d.NodeID) {
		return false
	}
	if len(f.SourceIDs) > 0 && !slices.Contains(f.SourceIDs, d.SourceID) {
		return false
	}
	if f.StartDate != nil && d.Created.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && !d.Created.Before(*f.EndDate) {
		return false
	}
	return true
}

// WithDateRange returns a copy of the filter restricted to [start, end).
func (f *DatumFilter) WithDateRange(start, end time.Time) *DatumFilter {
	c := f.Clone()
	if c == nil {
		c = &DatumFilter{}
	}
	c.StartDate = &start
	c.EndDate = &end
	return c
}

// Identifiable is implemented by configuration sections that name the service handling them.
type Identifiable interface {
	ServiceID() string
}

type DataConfiguration struct {
	Filter *DatumFilter `json:"datumFilter,omitempty"`
}

type OutputConfiguration struct {
	ServiceIdentifier string          `json:"serviceIdentifier"`
	CompressionType   CompressionType `json:"compressionType,omitempty"`
	ServiceProperties map[string]any  `json:"serviceProperties,omitempty"`
}

func (c *OutputConfiguration) ServiceID() string {
	if c == nil {
		return ""
	}
	return c.ServiceIdentifier
}

type DestinationConfiguration struct {
	ServiceIdentifier string         `json:"serviceIdentifier"`
	ServiceProperties map[string]any `json:"serviceProperties,omitempty"`
}

func (c *DestinationConfiguration) ServiceID() string {
	if c == nil {
		return ""
	}
	return c.ServiceIdentifier
}

// Configuration is the full description of an export job.
type Configuration struct {
	Name            string                    `json:"name,omitempty"`
	Data            *DataConfiguration        `json:"dataConfiguration,omitempty"`
	Output          *OutputConfiguration      `json:"outputConfiguration,omitempty"`
	Destination     *DestinationConfiguration `json:"destinationConfiguration,omitempty"`
	Schedule        ScheduleType              `json:"schedule,omitempty"`
	HourDelayOffset int                       `json:"hourDelayOffset,omitempty"`
	TimeZone        string                    `json:"timeZoneId,omitempty"`
}

// Clone returns a deep copy, so a running job is unaffected by later edits of the original.
func (c *Configuration) Clone() *Configuration {
	if c == nil {
		return nil
	}
	out := &Configuration{
		Name:            c.Name,
		Schedule:        c.Schedule,
		HourDelayOffset: c.HourDelayOffset,
		TimeZone:        c.TimeZone,
	}
	if c.Data != nil {
		out.Data = &DataConfiguration{Filter: c.Data.Filter.Clone()}
	}
	if c.Output != nil {
		out.Output = &OutputConfiguration{
			ServiceIdentifier: c.Output.ServiceIdentifier,
			CompressionType:   c.Output.CompressionType,
			ServiceProperties: cloneProps(c.Output.ServiceProperties),
		}
	}
	if c.Destination != nil {
		out.Destination = &DestinationConfiguration{
			ServiceIdentifier: c.Destination.ServiceIdentifier,
			ServiceProperties: cloneProps(c.Destination.ServiceProperties),
		}
	}
	return out
}

// cloneProps copies nested maps and slices produced by JSON decoding; other values are shared.
func cloneProps(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneProps(t)
	case []any:
		c := make([]any, len(t))
		for i := range t {
			c[i] = cloneValue(t[i])
		}
		return c
	case map[string]string:
		return maps.Clone(t)
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}

// Validate checks that the configuration is structurally complete.
func (c *Configuration) Validate() error {
	switch {
	case c.Data == nil:
		return errors.NewConfigurationError("export.config.data_missing", "Data configuration not provided")
	case c.Output == nil:
		return errors.NewConfigurationError("export.config.output_missing", "Output configuration not provided")
	case c.Destination == nil:
		return errors.NewConfigurationError("export.config.destination_missing", "Destination configuration not provided")
	case c.Schedule == "":
		return errors.NewConfigurationError("export.config.schedule_missing", "Schedule not configured")
	case c.Data.Filter == nil:
		return errors.NewConfigurationError("export.config.filter_missing", "Datum filter not configured")
	}
	if _, ok := ParseScheduleType(string(c.Schedule)); !ok {
		return errors.NewConfigurationError("export.config.schedule_invalid", "Unsupported schedule "+string(c.Schedule))
	}
	return nil
}

// Location resolves TimeZone, falling back to def when it is empty.
func (c *Configuration) Location(def *time.Location) (*time.Location, error) {
	if c.TimeZone == "" {
		if def == nil {
			return time.UTC, nil
		}
		return def, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, errors.NewConfigurationError("export.config.zone_invalid", "Unknown time zone "+c.TimeZone)
	}
	return loc, nil
}

// Marshal serializes the configuration for the task store.
func (c *Configuration) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

func UnmarshalConfiguration(data []byte) (*Configuration, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var c Configuration
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
