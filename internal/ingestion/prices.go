package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/DYBL777/DYBL-Crypto42/internal/oracle"
)

// priceUpdateJSON is the oracle network's price message.
// Field names use snake_case to match upstream producers.
type priceUpdateJSON struct {
	Asset       uint8 `json:"asset"`
	Price       int64 `json:"price"`
	UpdatedAtUs int64 `json:"updated_at_us"`
}

// PriceSubscriber keeps an oracle.PriceCache current from the c42.prices.>
// stream. Prices bypass the command pipeline entirely: they are not state
// transitions, only inputs the resolver samples at week boundaries.
type PriceSubscriber struct {
	js       jetstream.JetStream
	cache    *oracle.PriceCache
	consumer jetstream.ConsumeContext
}

func NewPriceSubscriber(js jetstream.JetStream, cache *oracle.PriceCache) *PriceSubscriber {
	return &PriceSubscriber{
		js:    js,
		cache: cache,
	}
}

// Subscribe starts consuming price updates. Prices tolerate loss and
// reordering, so the consumer delivers new messages only and acks
// unconditionally.
func (ps *PriceSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := ps.js.CreateOrUpdateConsumer(ctx, "C42_PRICES", jetstream.ConsumerConfig{
		Durable:       "c42-prices",
		FilterSubject: "c42.prices.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    1,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create price consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		defer msg.Ack()

		var j priceUpdateJSON
		if err := json.Unmarshal(msg.Data(), &j); err != nil {
			log.Printf("WARN: bad price message on %s: %v", msg.Subject(), err)
			return
		}
		ps.cache.Observe(j.Asset, j.Price, time.UnixMicro(j.UpdatedAtUs))
	})
	if err != nil {
		return fmt.Errorf("consume prices: %w", err)
	}

	ps.consumer = cc
	log.Println("INFO: subscribed to c42.prices.> (consumer=c42-prices)")
	return nil
}

// Stop gracefully stops the price consumer.
func (ps *PriceSubscriber) Stop() {
	if ps.consumer != nil {
		ps.consumer.Stop()
	}
}
