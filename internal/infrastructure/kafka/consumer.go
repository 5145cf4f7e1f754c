package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// Sender delivers a verification code to an address. The default
// implementation only logs; real delivery runs outside this service.
type Sender interface {
	SendVerificationCode(ctx context.Context, email, code string) error
}

type LogSender struct{}

func (LogSender) SendVerificationCode(_ context.Context, email, code string) error {
	slog.Info("verification code ready for delivery", "email", email, "code", code)
	return nil
}

// MailEvent is the payload published to the mail topic when a verification
// code is issued.
type MailEvent struct {
	Email     string `json:"email"`
	Code      string `json:"code"`
	CreatedAt string `json:"created_at"`
}

// MailConsumer drains the mail topic and hands each code to the Sender.
type MailConsumer struct {
	reader *kafka.Reader
	sender Sender
}

func NewMailConsumer(brokers []string, topic, groupID string, sender Sender) *MailConsumer {
	return &MailConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		sender: sender,
	}
}

func (c *MailConsumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		var event MailEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("failed to unmarshal mail event", "error", err)
			continue
		}

		if err := c.sender.SendVerificationCode(ctx, event.Email, event.Code); err != nil {
			slog.Error("failed to deliver verification code", "email", event.Email, "error", err)
		}
	}
}

func (c *MailConsumer) Close() error {
	return c.reader.Close()
}
