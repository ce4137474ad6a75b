// Package event ships every fanned-out server event to downstream services.
// Delivery to clients never waits on it: a failed publish is logged and the
// socket path carries on.
package event

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const RabbitMQActionHeader string = "x-action"

// Publisher receives one record per server event. Action is the event type,
// Data its wire JSON.
type Publisher interface {
	Publish(ctx context.Context, action string, data []byte) error
	Close() error
}

type EventLogData struct {
	Time    int64  `json:"time"`
	Service string `json:"service"`
	Action  string `json:"action"`
	Data    string `json:"data"`
}

// Noop drops everything. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, []byte) error { return nil }
func (Noop) Close() error                                  { return nil }

// RabbitMQ publishes to a single durable queue and mirrors each publish to an
// optional JSONL out-log that Replay can push again later.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	log     *zap.Logger

	mu      sync.Mutex
	outLog  *os.File
	timeout time.Duration
}

func RabbitMQConnect(url, queue, outLogPath string, log *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	log.Info("connection opened to RabbitMQ server")

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a RabbitMQ channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare RabbitMQ queue %s: %w", queue, err)
	}
	log.Info("declared RabbitMQ queue", zap.String("queue", queue))

	r := &RabbitMQ{
		conn:    conn,
		channel: ch,
		queue:   queue,
		log:     log,
		timeout: 5 * time.Second,
	}
	if outLogPath != "" {
		r.outLog, err = os.OpenFile(outLogPath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
	}
	return r, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, action string, data []byte) error {
	return r.publish(ctx, action, data, true)
}

func (r *RabbitMQ) publish(ctx context.Context, action string, data []byte, record bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.channel.PublishWithContext(
		ctx,
		"",      // exchange
		r.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    time.Now(),
			Headers: amqp.Table{
				RabbitMQActionHeader: action,
			},
			Body: data,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", action, err)
	}

	if record {
		return r.writeOutLog(EventLogData{
			Time:    time.Now().UnixMicro(),
			Service: r.queue,
			Action:  action,
			Data:    string(data),
		})
	}
	return nil
}

func (r *RabbitMQ) writeOutLog(entry EventLogData) error {
	if r.outLog == nil {
		return nil
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.outLog.Write(append(line, '\n'))
	return err
}

// Replay reads an out-log and publishes every entry again without logging it
// a second time. It returns the number of entries sent.
func (r *RabbitMQ) Replay(ctx context.Context, path string) (int, error) {
	return ReadLog(path, func(entry EventLogData) error {
		return r.publish(ctx, entry.Action, []byte(entry.Data), false)
	})
}

func (r *RabbitMQ) Close() error {
	var errs []error
	if r.channel != nil {
		errs = append(errs, r.channel.Close())
	}
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
	}
	if r.outLog != nil {
		errs = append(errs, r.outLog.Close())
	}
	return errors.Join(errs...)
}

// ReadLog calls fn for each entry of a JSONL event log, stopping at the first error.
func ReadLog(path string, fn func(EventLogData) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed opening file: %w", err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry EventLogData
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return n, fmt.Errorf("event log line %d: %w", n+1, err)
		}
		if err := fn(entry); err != nil {
			return n, err
		}
		n++
	}
	return n, scanner.Err()
}
