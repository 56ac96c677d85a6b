package destination

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/webitel/datum-exporter/internal/domain/model/export"
	"github.com/webitel/datum-exporter/internal/service"
)

const (
	defaultRedisKey = "datum_export:{jobId}:{name}{ext}"
	defaultRedisTTL = 24 * time.Hour
)

// RedisService stores each resource as a string value with an expiry.
// Properties: "key" template and "ttl" duration.
type RedisService struct {
	client redis.Cmdable
	log    *slog.Logger
}

func NewRedisService(client redis.Cmdable, log *slog.Logger) *RedisService {
	if log == nil {
		log = slog.Default()
	}
	return &RedisService{client: client, log: log}
}

func (s *RedisService) ID() string          { return "redis" }
func (s *RedisService) DisplayName() string { return "Redis" }

func (s *RedisService) Export(
	ctx context.Context,
	cfg *export.DestinationConfiguration,
	resources []export.Resource,
	props service.RuntimeProperties,
	progress service.ProgressListener,
) error {
	ttl, err := durationProp(cfg, "ttl", defaultRedisTTL)
	if err != nil {
		return err
	}
	tmpl := stringProp(cfg, "key", defaultRedisKey)
	for i, r := range resources {
		data, err := readResource(r)
		if err != nil {
			return err
		}
		key := indexedName(props.Expand(tmpl), i, len(resources))
		if err = s.client.Set(ctx, key, data, ttl).Err(); err != nil {
			return err
		}
		s.log.DebugContext(ctx, "datum_exporter.destination.redis.stored",
			slog.String("key", key), slog.Int("bytes", len(data)))
		if progress != nil {
			progress(1 / float64(len(resources)))
		}
	}
	return nil
}
