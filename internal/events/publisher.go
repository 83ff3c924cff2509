package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const TypePaymentSettled = "payment.settled"

// Writer is the subset of kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PaymentSettled is published once a payment has been posted to the ledger.
type PaymentSettled struct {
	Type              string          `json:"type"`
	PaymentID         string          `json:"paymentId"`
	PaymentNo         int64           `json:"paymentNo"`
	MemberID          int64           `json:"memberId"`
	PlanID            int64           `json:"planId"`
	MembershipID      string          `json:"membershipId"`
	JournalEntryID    string          `json:"journalEntryId"`
	CheckoutRequestID string          `json:"checkoutRequestId"`
	Receipt           string          `json:"receipt,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	SettledAt         time.Time       `json:"settledAt"`
}

// Publisher writes settlement events to a kafka topic.
type Publisher struct {
	writer Writer
}

func NewPublisher(broker, topic string) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w}
}

// NewPublisherWithWriter allows injecting a test writer.
func NewPublisherWithWriter(w Writer) *Publisher {
	return &Publisher{writer: w}
}

// PublishSettled writes the event keyed by payment id so all events for one
// payment land on the same partition.
func (p *Publisher) PublishSettled(ctx context.Context, ev PaymentSettled) error {
	ev.Type = TypePaymentSettled
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(ev.PaymentID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypePaymentSettled)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("[EVENTS] kafka write error for payment %s: %v", ev.PaymentID, err)
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
