package feed

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// Publisher pushes order change events into the feed topic.
type Publisher interface {
	Publish(event Event) error
}

type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewSaramaPublisher(brokers []string, topic string) (*SaramaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	prod, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	return &SaramaPublisher{producer: prod, topic: topic}, nil
}

func (p *SaramaPublisher) Publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		// Key by order id so all events for one order land on one partition
		// and keep their delivery order.
		Key:   sarama.StringEncoder(event.ID),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		log.Printf("Failed to send event for order %s: %v", event.ID, err)
		return err
	}
	log.Printf("Event %s for order %s stored in topic(%s)/partition(%d)/offset(%d)",
		event.Type, event.ID, p.topic, partition, offset)
	return nil
}

func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}
