package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"skillgauge/models"
)

// ResultRecordedRoutingKey is the routing key of the event published once per scored session.
const ResultRecordedRoutingKey = "assessment.result.recorded"

// Publisher announces recorded results to downstream consumers (reporting, notification).
type Publisher interface {
	PublishResult(ctx context.Context, result *models.AssessmentResult) error
	Close() error
}

// ResultRecorded is the event body.
type ResultRecorded struct {
	SessionID  string                `json:"session_id"`
	WorkerID   string                `json:"worker_id"`
	RoundID    uint                  `json:"round_id"`
	Score      int                   `json:"score"`
	Total      int                   `json:"total_questions"`
	Percentage int                   `json:"percentage"`
	Passed     bool                  `json:"passed"`
	Breakdown  []models.CategoryStat `json:"breakdown"`
	FinishedAt time.Time             `json:"finished_at"`
}

// NewResultRecorded builds the event body for result.
func NewResultRecorded(result *models.AssessmentResult) ResultRecorded {
	return ResultRecorded{
		SessionID:  result.SessionID,
		WorkerID:   result.WorkerID,
		RoundID:    result.RoundID,
		Score:      result.Score,
		Total:      result.TotalQuestions,
		Percentage: result.Percentage,
		Passed:     result.Passed,
		Breakdown:  result.Breakdown,
		FinishedAt: result.FinishedAt,
	}
}

type nopPublisher struct{}

// NewNopPublisher returns a Publisher that drops every event. Used when no broker is configured.
func NewNopPublisher() Publisher { return nopPublisher{} }

func (nopPublisher) PublishResult(context.Context, *models.AssessmentResult) error { return nil }
func (nopPublisher) Close() error                                                  { return nil }

// RabbitPublisher publishes events to a topic exchange.
type RabbitPublisher struct {
	mu       sync.Mutex // amqp channels are not safe for concurrent publishing
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewRabbitPublisher dials url and declares a durable topic exchange.
func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	log.Printf("INFO: [Events] Publishing results to RabbitMQ exchange '%s'.", exchange)
	return &RabbitPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *RabbitPublisher) PublishResult(ctx context.Context, result *models.AssessmentResult) error {
	body, err := json.Marshal(NewResultRecorded(result))
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx,
		p.exchange,
		ResultRecordedRoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    result.SessionID,
			Timestamp:    result.FinishedAt,
			Body:         body,
		},
	)
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
