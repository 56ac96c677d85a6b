package destination

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/webitel/datum-exporter/internal/domain/model/export"
	"github.com/webitel/datum-exporter/internal/service"
)

// KafkaConfig holds the producer connection settings.
type KafkaConfig struct {
	Brokers  []string
	ClientID string
}

// NewSyncProducer creates a producer that waits for all in-sync replicas.
func NewSyncProducer(cfg KafkaConfig) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.MaxMessageBytes = 16 << 20

	config.Version = sarama.V3_6_0_0

	return sarama.NewSyncProducer(cfg.Brokers, config)
}

// KafkaService sends every resource as one message.
// Properties: "topic" (defaults to the service topic) and "key" template.
type KafkaService struct {
	producer     sarama.SyncProducer
	defaultTopic string
	log          *slog.Logger
}

func NewKafkaService(producer sarama.SyncProducer, defaultTopic string, log *slog.Logger) *KafkaService {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaService{producer: producer, defaultTopic: defaultTopic, log: log}
}

func (s *KafkaService) ID() string          { return "kafka" }
func (s *KafkaService) DisplayName() string { return "Kafka" }

func (s *KafkaService) Export(
	ctx context.Context,
	cfg *export.DestinationConfiguration,
	resources []export.Resource,
	props service.RuntimeProperties,
	progress service.ProgressListener,
) error {
	topic := props.Expand(stringProp(cfg, "topic", s.defaultTopic))
	if topic == "" {
		return fmt.Errorf("kafka topic not configured")
	}
	keyTmpl := stringProp(cfg, "key", "{jobId}")
	for i, r := range resources {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := readResource(r)
		if err != nil {
			return err
		}
		msg := &sarama.ProducerMessage{
			Topic: topic,
			Key:   sarama.StringEncoder(props.Expand(keyTmpl)),
			Value: sarama.ByteEncoder(data),
			Headers: []sarama.RecordHeader{
				{Key: []byte("content-type"), Value: []byte(r.ContentType())},
				{Key: []byte("content-encoding"), Value: []byte(r.ContentEncoding())},
				{Key: []byte("filename"), Value: []byte(r.Name())},
				{Key: []byte("part"), Value: []byte(strconv.Itoa(i + 1))},
				{Key: []byte("parts"), Value: []byte(strconv.Itoa(len(resources)))},
			},
		}
		partition, offset, err := s.producer.SendMessage(msg)
		if err != nil {
			return fmt.Errorf("failed to send message to kafka topic %s: %w", topic, err)
		}
		s.log.DebugContext(ctx, "datum_exporter.destination.kafka.sent",
			slog.String("topic", topic), slog.Int("partition", int(partition)), slog.Int64("offset", offset))
		if progress != nil {
			progress(1 / float64(len(resources)))
		}
	}
	return nil
}

func (s *KafkaService) Close() error {
	if s.producer == nil {
		return nil
	}
	return s.producer.Close()
}
