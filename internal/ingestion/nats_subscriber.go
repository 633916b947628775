package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds commands
// into the settlement core via the commandChan. JetStream is the primary
// high-throughput submission surface; each subject maps to one command type.
type NATSSubscriber struct {
	js          jetstream.JetStream
	commandChan chan<- RawCommand
	consumers   []jetstream.ConsumeContext
}

// RawCommand is the received-but-untyped command from NATS, ready for the
// shell to validate and convert into a typed command.Command before sending
// to the core.
type RawCommand struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to command types.
// Each command type has its own subject for independent scaling.
type SubjectConfig struct {
	Subject      string
	CommandType  string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "c42.tickets.enroll.>", CommandType: "EnrollTicket", ConsumerName: "c42-enroll", StreamName: "C42_TICKETS"},
		{Subject: "c42.tickets.extend.>", CommandType: "ExtendTicket", ConsumerName: "c42-extend", StreamName: "C42_TICKETS"},
		{Subject: "c42.tickets.picks.>", CommandType: "ChangePicks", ConsumerName: "c42-picks", StreamName: "C42_TICKETS"},
		{Subject: "c42.claims.prize.>", CommandType: "ClaimPrize", ConsumerName: "c42-claim-prize", StreamName: "C42_CLAIMS"},
		{Subject: "c42.claims.closure.>", CommandType: "ClaimClosureShare", ConsumerName: "c42-claim-closure", StreamName: "C42_CLAIMS"},
		{Subject: "c42.cranks.resolve.>", CommandType: "ResolveWeek", ConsumerName: "c42-crank-resolve", StreamName: "C42_CRANKS"},
		{Subject: "c42.cranks.matching.>", CommandType: "AdvanceMatching", ConsumerName: "c42-crank-matching", StreamName: "C42_CRANKS"},
		{Subject: "c42.cranks.distribution.>", CommandType: "AdvanceDistribution", ConsumerName: "c42-crank-dist", StreamName: "C42_CRANKS"},
		{Subject: "c42.cranks.forcedist.>", CommandType: "ForceCompleteDistribution", ConsumerName: "c42-crank-forcedist", StreamName: "C42_CRANKS"},
		{Subject: "c42.cranks.sweep.>", CommandType: "SweepExpired", ConsumerName: "c42-crank-sweep", StreamName: "C42_CRANKS"},
		{Subject: "c42.cranks.yield.>", CommandType: "SyncYield", ConsumerName: "c42-crank-yield", StreamName: "C42_CRANKS"},
		{Subject: "c42.cranks.unwind.>", CommandType: "EmergencyUnwind", ConsumerName: "c42-crank-unwind", StreamName: "C42_CRANKS"},
		{Subject: "c42.cranks.dormancy.>", CommandType: "TriggerDormancy", ConsumerName: "c42-crank-dormancy", StreamName: "C42_CRANKS"},
		{Subject: "c42.cranks.drain.>", CommandType: "AdvanceDrain", ConsumerName: "c42-crank-drain", StreamName: "C42_CRANKS"},
		{Subject: "c42.cranks.rescue.>", CommandType: "RescueAbandoned", ConsumerName: "c42-crank-rescue", StreamName: "C42_CRANKS"},
		{Subject: "c42.cranks.closure.>", CommandType: "TriggerClosure", ConsumerName: "c42-crank-closure", StreamName: "C42_CRANKS"},
		{Subject: "c42.ops.treasury.withdraw.>", CommandType: "WithdrawTreasury", ConsumerName: "c42-ops-withdraw", StreamName: "C42_OPS"},
		{Subject: "c42.ops.treasury.renounce.>", CommandType: "RenounceTreasury", ConsumerName: "c42-ops-renounce", StreamName: "C42_OPS"},
		{Subject: "c42.ops.oracle.propose.>", CommandType: "ProposeOracleConfig", ConsumerName: "c42-ops-propose", StreamName: "C42_OPS"},
		{Subject: "c42.ops.oracle.cancel.>", CommandType: "CancelOracleProposal", ConsumerName: "c42-ops-cancel", StreamName: "C42_OPS"},
		{Subject: "c42.ops.oracle.execute.>", CommandType: "ExecuteOracleProposal", ConsumerName: "c42-ops-execute", StreamName: "C42_OPS"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, commandChan chan<- RawCommand) *NATSSubscriber {
	return &NATSSubscriber{
		js:          js,
		commandChan: commandChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawCommand{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.commandChan <- raw:
				// Successfully queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "C42_TICKETS",
			Subjects:  []string{"c42.tickets.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "C42_CLAIMS",
			Subjects:  []string{"c42.claims.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "C42_CRANKS",
			Subjects:  []string{"c42.cranks.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "C42_OPS",
			Subjects:  []string{"c42.ops.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "C42_PRICES",
			Subjects:  []string{"c42.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
