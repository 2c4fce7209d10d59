package notification

import (
	"time"

	"github.com/Shopify/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/errors"
	"github.com/amalgam8/vigil/utils/logging"
)

const brokerDialTimeout = 60 * time.Second

// Producer publishes coordination events to a message broker.
type Producer interface {
	SendEvent(topic, key, value string) error
	Close() error
}

// SASL holds broker authentication credentials.
type SASL struct {
	Enable   bool
	User     string
	Password string
}

// ProducerConfig carries the broker connection settings.
type ProducerConfig struct {
	ClientID string
	Brokers  []string
	SASL     SASL
}

type producer struct {
	logger   *log.Entry
	producer sarama.SyncProducer
}

// NewProducer instantiates a Kafka producer. Sends are synchronous and
// acknowledged by the full in-sync replica set.
func NewProducer(conf ProducerConfig) (Producer, error) {
	saramaProducer, err := sarama.NewSyncProducer(conf.Brokers, saramaConfig(conf))
	if err != nil {
		return nil, errors.Wrap(err, "Failed creating Kafka producer")
	}

	return &producer{
		logger:   logging.GetLogger(module),
		producer: saramaProducer,
	}, nil
}

func saramaConfig(conf ProducerConfig) *sarama.Config {
	config := sarama.NewConfig()
	config.Net.DialTimeout = brokerDialTimeout

	// SASL/PLAIN credentials go over TLS only.
	if conf.SASL.Enable {
		config.ClientID = conf.ClientID
		config.Net.TLS.Enable = true
		config.Net.SASL.Enable = true
		config.Net.SASL.User = conf.SASL.User
		config.Net.SASL.Password = conf.SASL.Password
	}

	// Events are keyed but pinned to partition 0, preserving the global
	// order pub/sub subscribers observe.
	config.Producer.Partitioner = sarama.NewManualPartitioner
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true

	return config
}

// SendEvent publishes a single keyed event and waits for the broker ack.
func (p *producer) SendEvent(topic, key, value string) error {
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.StringEncoder(value),
		Partition: 0,
	})
	if err != nil {
		return err
	}

	p.logger.WithFields(log.Fields{
		"topic":     topic,
		"key":       key,
		"partition": partition,
		"offset":    offset,
	}).Debug("Event delivered to broker")

	return nil
}

// Close shuts down the underlying Kafka client.
func (p *producer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
