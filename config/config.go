package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/webitel/datum-exporter/internal/errors"
)

type AppConfig struct {
	File     string          `json:"-"`
	Consul   *ConsulConfig   `json:"consul,omitempty" validate:"required"`
	Redis    *RedisConfig    `json:"redis,omitempty" validate:"required"`
	Database *DatabaseConfig `json:"database,omitempty" validate:"required"`
	Export   *ExportConfig   `json:"export,omitempty" validate:"required"`
	Kafka    *KafkaConfig    `json:"kafka,omitempty"`
	Local    *LocalConfig    `json:"local,omitempty"`
}

type ConsulConfig struct {
	Id            string `json:"id" validate:"required"`
	Address       string `json:"address" validate:"required"`
	PublicAddress string `json:"publicAddress" validate:"required,hostname_port"`
}

type RedisConfig struct {
	Addr     string `json:"addr" validate:"required,hostname_port"`
	Password string `json:"password"`
	DB       int    `json:"db" validate:"gte=0"`
}

type DatabaseConfig struct {
	Url string `json:"url" validate:"required"`
}

type ExportConfig struct {
	Workers          int           `json:"workers" validate:"gte=1"`
	PurgeInterval    time.Duration `json:"purge_interval" validate:"gt=0"`
	MinRetention     time.Duration `json:"min_retention" validate:"gte=0"`
	TaskRetention    time.Duration `json:"task_retention" validate:"gte=0"`
	Zone             string        `json:"zone" validate:"required,timezone"`
	ProgressInterval time.Duration `json:"progress_interval" validate:"gte=0"`
	TempDir          string        `json:"temp_dir"`
}

// Location returns the default zone for schedule boundaries.
func (c *ExportConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Zone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type KafkaConfig struct {
	Brokers  []string `json:"brokers" validate:"omitempty,dive,hostname_port"`
	ClientID string   `json:"client_id"`
	Topic    string   `json:"topic"`
}

// Enabled reports whether the Kafka destination should be registered.
func (c *KafkaConfig) Enabled() bool { return c != nil && len(c.Brokers) > 0 }

type LocalConfig struct {
	Dir string `json:"dir"`
}

func LoadConfig() (*AppConfig, error) {
	return Load(os.Args[1:])
}

// Load resolves the configuration from command line args, the environment and an optional JSON file.
func Load(args []string) (*AppConfig, error) {
	v := viper.New()
	if err := bindFlagsAndEnv(v, args); err != nil {
		return nil, err
	}

	configFile := getConfigFilePath(v)
	if configFile != "" {
		if err := loadFromFile(v, configFile); err != nil {
			return nil, err
		}
	}

	cfg := buildAppConfig(v, configFile)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func bindFlagsAndEnv(v *viper.Viper, args []string) error {
	fs := pflag.NewFlagSet("datum-exporter", pflag.ContinueOnError)
	fs.String("config_file", "", "Configuration file in JSON format")

	// database
	fs.String("data_source", "", "Data source")

	// consul
	fs.String("id", "", "Service id")
	fs.String("consul", "", "Host to consul")
	fs.String("grpc_addr", "", "Public gRPC address with port")

	// redis
	fs.String("redis_addr", "localhost:6379", "Redis address")
	fs.String("redis_password", "", "Redis password")
	fs.Int("redis_db", 0, "Redis DB number")

	// export
	fs.Int("workers", 5, "Number of concurrent export jobs")
	fs.Duration("purge_interval", time.Hour, "Interval between registry purges")
	fs.Duration("min_retention", 4*time.Hour, "Minimum time a completed job stays queryable")
	fs.Duration("task_retention", 0, "Age after which completed job records are deleted, 0 keeps them")
	fs.String("zone", "UTC", "Default time zone for schedule boundaries")
	fs.Duration("progress_interval", time.Second, "Minimum interval between progress events")
	fs.String("temp_dir", "", "Directory for intermediate export files")

	// destinations
	fs.StringSlice("kafka_brokers", nil, "Kafka brokers for the kafka destination")
	fs.String("kafka_client_id", "datum-exporter", "Kafka client id")
	fs.String("kafka_topic", "", "Default topic of the kafka destination")
	fs.String("local_dir", "", "Base directory of the local destination")

	if err := fs.Parse(args); err != nil {
		return errors.InvalidArgument("could not parse flags", errors.WithCause(err))
	}

	_ = v.BindPFlags(fs)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit mapping
	_ = v.BindEnv("id", "CONSUL_ID")
	_ = v.BindEnv("consul", "CONSUL_HOST")
	_ = v.BindEnv("grpc_addr", "GRPC_ADDR")
	_ = v.BindEnv("redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis_db", "REDIS_DB")
	_ = v.BindEnv("data_source", "DATA_SOURCE")
	_ = v.BindEnv("kafka_brokers", "KAFKA_BROKERS")
	_ = v.BindEnv("local_dir", "EXPORT_LOCAL_DIR")
	return nil
}

func getConfigFilePath(v *viper.Viper) string {
	file := v.GetString("config_file")
	if file == "" {
		file = os.Getenv("DATUM_EXPORTER_CONFIG_FILE")
	}
	return file
}

func loadFromFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return errors.New(fmt.Sprintf("could not load config file: %s", err.Error()))
	}
	return nil
}

func buildAppConfig(v *viper.Viper, file string) *AppConfig {
	return &AppConfig{
		File:     file,
		Database: &DatabaseConfig{Url: v.GetString("data_source")},
		Export: &ExportConfig{
			Workers:          v.GetInt("workers"),
			PurgeInterval:    v.GetDuration("purge_interval"),
			MinRetention:     v.GetDuration("min_retention"),
			TaskRetention:    v.GetDuration("task_retention"),
			Zone:             v.GetString("zone"),
			ProgressInterval: v.GetDuration("progress_interval"),
			TempDir:          v.GetString("temp_dir"),
		},
		Consul: &ConsulConfig{
			Id:            v.GetString("id"),
			Address:       v.GetString("consul"),
			PublicAddress: v.GetString("grpc_addr"),
		},
		Redis: &RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		Kafka: &KafkaConfig{
			Brokers:  v.GetStringSlice("kafka_brokers"),
			ClientID: v.GetString("kafka_client_id"),
			Topic:    v.GetString("kafka_topic"),
		},
		Local: &LocalConfig{Dir: v.GetString("local_dir")},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return errors.InvalidArgument(
				fmt.Sprintf("%s is invalid (%s)", f.Namespace(), f.Tag()),
				errors.WithID("config.validate."+strings.ToLower(f.Field())),
			)
		}
		return errors.InvalidArgument("invalid configuration", errors.WithCause(err))
	}
	return nil
}
