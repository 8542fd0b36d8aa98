package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher writes outbound side-effect events to kafka: OTP delivery
// requests for the SMS gateway and push notifications for the dispatcher.
// Both are fire-and-forget from the caller's point of view.
type Publisher struct {
	sms  *kafkago.Writer
	push *kafkago.Writer
	log  *zap.SugaredLogger
}

// NewPublisher builds writers for the SMS and push topics.
func NewPublisher(brokers []string, smsTopic, pushTopic string, log *zap.SugaredLogger) *Publisher {
	newWriter := func(topic string) *kafkago.Writer {
		return &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireOne,
		}
	}
	return &Publisher{sms: newWriter(smsTopic), push: newWriter(pushTopic), log: log}
}

type otpEvent struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// DeliverOtp publishes the code for the SMS gateway to send.
func (p *Publisher) DeliverOtp(ctx context.Context, phone, code string) error {
	return p.publish(ctx, p.sms, phone, otpEvent{Phone: phone, Code: code})
}

type pushEvent struct {
	DeviceToken string            `json:"device_token"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
}

// Notify publishes a push notification for the dispatcher. Failures are the
// caller's to log; they never gate the primary operation.
func (p *Publisher) Notify(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	return p.publish(ctx, p.push, deviceToken, pushEvent{DeviceToken: deviceToken, Title: title, Body: body, Data: data})
}

func (p *Publisher) publish(ctx context.Context, w *kafkago.Writer, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Key:   []byte(key),
		Value: b,
		Time:  time.Now(),
	}
	return w.WriteMessages(ctx, msg)
}

// Close flushes and closes both writers.
func (p *Publisher) Close() error {
	if err := p.sms.Close(); err != nil {
		p.log.Warnw("close sms writer", "error", err)
	}
	return p.push.Close()
}
