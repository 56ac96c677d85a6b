package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/datum-exporter/internal/errors"
	"google.golang.org/grpc/codes"
)

func requiredArgs() []string {
	return []string{
		"--data_source=postgres://localhost:5432/webitel",
		"--id=datum-exporter-1",
		"--consul=127.0.0.1:8500",
		"--grpc_addr=127.0.0.1:10055",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(requiredArgs())
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost:5432/webitel", cfg.Database.Url)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 5, cfg.Export.Workers)
	assert.Equal(t, time.Hour, cfg.Export.PurgeInterval)
	assert.Equal(t, 4*time.Hour, cfg.Export.MinRetention)
	assert.Zero(t, cfg.Export.TaskRetention)
	assert.Equal(t, time.UTC, cfg.Export.Location())
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoadFlagsOverride(t *testing.T) {
	args := append(requiredArgs(),
		"--workers=2",
		"--min_retention=30m",
		"--kafka_brokers=kafka-1:9092,kafka-2:9092",
		"--zone=Europe/Kyiv",
	)
	cfg, err := Load(args)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Export.Workers)
	assert.Equal(t, 30*time.Minute, cfg.Export.MinRetention)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, "Europe/Kyiv", cfg.Export.Zone)
}

func TestLoadFromEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"workers": 9, "local_dir": "/var/lib/exports"}`), 0o600))

	t.Setenv("DATUM_EXPORTER_CONFIG_FILE", file)
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load(requiredArgs())
	require.NoError(t, err)
	assert.Equal(t, file, cfg.File)
	assert.Equal(t, 9, cfg.Export.Workers)
	assert.Equal(t, "/var/lib/exports", cfg.Local.Dir)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing data source", requiredArgs()[1:]},
		{"bad workers", append(requiredArgs(), "--workers=0")},
		{"bad zone", append(requiredArgs(), "--zone=Mars/Olympus")},
		{"bad broker", append(requiredArgs(), "--kafka_brokers=not a host")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args)
			require.Error(t, err)
			assert.Equal(t, codes.InvalidArgument, errors.Code(err))
		})
	}
}

func TestLoadUnknownFlag(t *testing.T) {
	_, err := Load([]string{"--no_such_flag"})
	assert.Error(t, err)
}
