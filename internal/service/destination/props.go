package destination

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/webitel/datum-exporter/internal/domain/model/export"
)

func stringProp(cfg *export.DestinationConfiguration, key, def string) string {
	if cfg == nil {
		return def
	}
	if v, ok := cfg.ServiceProperties[key].(string); ok && v != "" {
		return v
	}
	return def
}

func durationProp(cfg *export.DestinationConfiguration, key string, def time.Duration) (time.Duration, error) {
	if cfg == nil {
		return def, nil
	}
	switch v := cfg.ServiceProperties[key].(type) {
	case nil:
		return def, nil
	case string:
		if v == "" {
			return def, nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		return d, nil
	case float64:
		return time.Duration(v) * time.Second, nil
	case int:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("invalid %s %v", key, v)
	}
}

// indexedName appends the 1-based resource index when a job produced several resources.
func indexedName(name string, i, total int) string {
	if total <= 1 {
		return name
	}
	return name + "." + strconv.Itoa(i+1)
}

func readResource(r export.Resource) ([]byte, error) {
	rc, err := r.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
