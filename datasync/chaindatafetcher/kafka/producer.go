// Package kafka implements the finalized-block event bus (SPEC_FULL.md
// §EXP-5), a sarama async producer grounded on the teacher's
// datasync/chaindatafetcher/event/kafka.KafkaBroker.newProducer/Publish
// pair, trimmed to the one topic numi-core needs: it drops the
// consumer-group/cluster-admin machinery the teacher built for its
// bidirectional event bus, since numi-core only ever publishes.
package kafka

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"

	"github.com/numi-chain/numi-core/datasync/chaindatafetcher/common"
	"github.com/numi-chain/numi-core/log"
)

// FinalizedBlockTopic is the single topic the fetcher publishes onto
// (SPEC_FULL.md §EXP-5).
const FinalizedBlockTopic = "numi.blocks.finalized"

// Config mirrors the teacher's KafkaConfig, narrowed to what an
// async-only producer needs.
type Config struct {
	Brokers []string
	Topic   string
}

// DefaultConfig matches the teacher's GetDefaultKafkaConfig defaults.
func DefaultConfig(brokers []string) Config {
	return Config{Brokers: brokers, Topic: FinalizedBlockTopic}
}

// Producer publishes FinalizedBlock payloads to kafka. It satisfies
// common.Publisher.
type Producer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   log.Logger
}

// NewProducer dials brokers and starts an async producer, the same
// Producer.RequiredAcks/Compression/Flush settings the teacher's
// newProducer used.
func NewProducer(cfg Config) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	saramaCfg.Producer.Compression = sarama.CompressionSnappy
	saramaCfg.Producer.Flush.Frequency = 500 * time.Millisecond
	saramaCfg.Producer.Return.Successes = false
	saramaCfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, err
	}
	p := &Producer{producer: producer, topic: cfg.Topic, logger: log.NewModuleLogger(log.DataSync)}
	go p.drainErrors()
	return p, nil
}

func (p *Producer) drainErrors() {
	for err := range p.producer.Errors() {
		p.logger.Warn("kafka publish failed", "err", err.Err)
	}
}

// Publish marshals block to JSON and enqueues it on the producer's input
// channel. It never blocks past the channel send — the teacher's pattern
// of firing into producer.Input() and letting the async producer's own
// goroutines own the network round trip.
func (p *Producer) Publish(block common.FinalizedBlock) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(block.Block.Hash().String()),
		Value: sarama.ByteEncoder(data),
	}
	return nil
}

// Done closes the producer, matching the teacher's EventBroker.Done.
func (p *Producer) Done() {
	_ = p.producer.Close()
}
