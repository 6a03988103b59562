package feed

import (
	"context"
	"encoding/json"
	"log"

	"github.com/IBM/sarama"
)

// ApplyFunc receives decoded events in delivery order.
type ApplyFunc func(Event)

// DegradedFunc is called when the feed connection drops; consumers keep
// serving their (now stale) snapshot instead of tearing down.
type DegradedFunc func(err error)

type consumerGroupHandler struct {
	apply ApplyFunc
}

func (consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("Skipping malformed feed message at offset %d: %v", msg.Offset, err)
			session.MarkMessage(msg, "")
			continue
		}
		h.apply(event)
		session.MarkMessage(msg, "")
	}
	return nil
}

// Subscribe consumes the change topic until ctx is cancelled, handing each
// event to apply. Consume errors mark the feed degraded and are retried by
// sarama's rebalance loop.
func Subscribe(ctx context.Context, cfg *sarama.Config, brokers []string, groupID, topic string, apply ApplyFunc, degraded DegradedFunc) error {
	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := consumerGroup.Close(); err != nil {
			log.Printf("Error closing consumer group: %v", err)
		}
	}()

	handler := consumerGroupHandler{apply: apply}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := consumerGroup.Consume(ctx, []string{topic}, handler); err != nil {
				log.Printf("Error from feed consumer: %v", err)
				if degraded != nil {
					degraded(err)
				}
			}
		}
	}
}
