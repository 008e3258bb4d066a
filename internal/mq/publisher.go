package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/xjson"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunRequested MessageType = "run.requested"
	MessageTypeRunCompleted MessageType = "run.completed"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunRequestedPayload — payload запроса на выполнение run.
type RunRequestedPayload struct {
	RunID  uuid.UUID `json:"run_id"`
	FlowID string    `json:"flow_id"`
}

// RunCompletedPayload — payload события о завершённом run.
// Журнал выполнения в событие не входит: он лежит в runs.result.
type RunCompletedPayload struct {
	RunID      uuid.UUID        `json:"run_id"`
	FlowID     string           `json:"flow_id"`
	Status     domain.RunStatus `json:"status"`
	Trigger    domain.Trigger   `json:"trigger"`
	Error      string           `json:"error,omitempty"`
	DurationMs int64            `json:"duration_ms"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := xjson.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishRunRequested публикует запрос на выполнение run.
// Потребитель: Worker.
func (p *Publisher) PublishRunRequested(ctx context.Context, run *domain.Run) error {
	msg := NewMessage(MessageTypeRunRequested, RunRequestedPayload{RunID: run.ID, FlowID: run.FlowID})
	return p.Publish(ctx, ExchangeRuns, RoutingKeyRequested, msg)
}

// PublishRunCompleted публикует событие о завершённом run.
func (p *Publisher) PublishRunCompleted(ctx context.Context, run *domain.Run) error {
	msg := NewMessage(MessageTypeRunCompleted, CompletedPayload(run))
	return p.Publish(ctx, ExchangeRuns, RoutingKeyCompleted, msg)
}

// RecordRun реализует runner.Recorder: каждый завершённый run
// публикуется как run.completed.
func (p *Publisher) RecordRun(ctx context.Context, run *domain.Run) error {
	return p.PublishRunCompleted(ctx, run)
}

// CompletedPayload собирает payload run.completed из run.
func CompletedPayload(run *domain.Run) RunCompletedPayload {
	return RunCompletedPayload{
		RunID:      run.ID,
		FlowID:     run.FlowID,
		Status:     run.Status,
		Trigger:    run.Trigger,
		Error:      run.Error,
		DurationMs: run.Duration().Milliseconds(),
		FinishedAt: run.FinishedAt,
	}
}
