package logging

import (
	"context"
	"log/slog"
	"os"

	slogutil "github.com/webitel/webitel-go-kit/infra/otel/log/bridge/slog"
	otelsdk "github.com/webitel/webitel-go-kit/infra/otel/sdk"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/sdk/resource"

	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/log/otlp"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/log/stdout"
)

// LevelFromEnv reads OTEL_LOG_LEVEL, defaulting to info for empty or unknown values.
func LevelFromEnv() slog.Level {
	level := slog.LevelInfo
	if input := os.Getenv("OTEL_LOG_LEVEL"); input != "" {
		if err := level.UnmarshalText([]byte(input)); err != nil {
			return slog.LevelInfo
		}
	}
	return level
}

// Setup initializes OpenTelemetry, redirects slog.Default() to the otel log bridge
// and returns the shutdown function.
func Setup(service *resource.Resource) (func(context.Context) error, error) {
	var verbose slog.LevelVar
	verbose.Set(LevelFromEnv())

	ctx := context.Background()
	shutdown, err := otelsdk.Configure(
		ctx,
		otelsdk.WithResource(service),
		otelsdk.WithLogBridge(func() {
			stdlog := slog.New(
				slogutil.WithLevel(
					&verbose,
					otelslog.NewHandler("slog"),
				),
			)
			slog.SetDefault(stdlog)
		}),
	)
	if err != nil {
		return nil, err
	}

	slog.Default().InfoContext(ctx, "datum_exporter.otel.setup_complete", slog.String("level", verbose.Level().String()))
	return shutdown, nil
}
