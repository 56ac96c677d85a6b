package service

import (
	"fmt"
	"regexp"
	"time"

	"github.com/webitel/datum-exporter/internal/domain/model/export"
)

// Runtime property names handed to destination services.
const (
	PropName          = "name"
	PropJobID         = "jobId"
	PropDate          = "date"
	PropDateTime      = "dateTime"
	PropExt           = "ext"
	PropContentType   = "contentType"
	PropScheduleType  = "scheduleType"
	PropExportDate    = "exportDate"
	PropDateFormatter = "dateFormatter"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T1504"
)

// RuntimeProperties carries job derived values a destination can use to name what it writes.
type RuntimeProperties map[string]any

type RuntimeInput struct {
	JobID       string
	Name        string
	Schedule    export.ScheduleType
	ExportDate  time.Time
	Location    *time.Location
	Output      OutputFormatService
	Compression export.CompressionType
}

func NewRuntimeProperties(in RuntimeInput) RuntimeProperties {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	local := in.ExportDate.In(loc)
	formatter := func(t time.Time) string { return t.In(loc).Format(dateLayout) }

	props := RuntimeProperties{
		PropName:          in.Name,
		PropJobID:         in.JobID,
		PropDate:          local.Format(dateLayout),
		PropDateTime:      local.Format(dateTimeLayout),
		PropScheduleType:  in.Schedule.String(),
		PropExportDate:    in.ExportDate,
		PropDateFormatter: formatter,
	}
	if in.Output != nil {
		props[PropExt] = in.Output.Extension() + in.Compression.FileSuffix()
		props[PropContentType] = in.Output.ContentType()
	}
	return props
}

func (p RuntimeProperties) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		if f, ok := p[PropDateFormatter].(func(time.Time) string); ok {
			return f(v)
		}
		return v.Format(dateLayout)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

var placeholder = regexp.MustCompile(`\{([A-Za-z]+)\}`)

// Expand replaces {token} placeholders with property values. Unknown tokens are left as is.
func (p RuntimeProperties) Expand(template string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		if _, ok := p[key]; !ok {
			return m
		}
		return p.String(key)
	})
}
