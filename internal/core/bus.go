package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/solve-it-project/solveit/internal/kb"
)

const (
	// EventsStream retains knowledge base lifecycle events.
	EventsStream        = "KB_EVENTS"
	subjectEventsPrefix = "kb.events."
	SubjectEvents       = subjectEventsPrefix + ">"

	// SubjectSearch and SubjectEntity answer request/reply queries.
	SubjectSearch = "kb.query.search"
	SubjectEntity = "kb.query.entity"

	queryQueue = "solveit-query"
)

// QueryHandler answers bus queries. Engine implements it.
type QueryHandler interface {
	Search(ctx context.Context, q SearchQuery) (kb.Results, error)
	Entity(ctx context.Context, q EntityQuery) (EntityReply, error)
}

// EventBus wraps NATS JetStream for knowledge base events and plain NATS
// request/reply for queries.
type EventBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	ns     *server.Server
	url    string
	logger zerolog.Logger
	mu     sync.RWMutex
	subs   []*nats.Subscription

	metrics *BusMetrics
}

// BusMetrics tracks event bus performance counters.
type BusMetrics struct {
	mu              sync.Mutex `json:"-"`
	EventsPublished int64      `json:"events_published"`
	EventsFailed    int64      `json:"events_failed"`
	QueriesServed   int64      `json:"queries_served"`
	QueriesFailed   int64      `json:"queries_failed"`
	MessagesAcked   int64      `json:"messages_acked"`
	MessagesNaked   int64      `json:"messages_naked"`
}

func (m *BusMetrics) inc(field *int64) {
	m.mu.Lock()
	*field++
	m.mu.Unlock()
}

// NewEventBus creates a new EventBus. If cfg.Embedded is true, it starts an embedded NATS server.
func NewEventBus(cfg *BusConfig, logger zerolog.Logger) (*EventBus, error) {
	bus := &EventBus{
		logger:  logger.With().Str("component", "event_bus").Logger(),
		subs:    make([]*nats.Subscription, 0),
		metrics: &BusMetrics{},
	}

	url := cfg.URL
	if cfg.Embedded {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating NATS data dir: %w", err)
		}

		opts := &server.Options{
			Host:      "127.0.0.1",
			Port:      cfg.Port,
			JetStream: true,
			StoreDir:  cfg.DataDir,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("creating embedded NATS server: %w", err)
		}

		ns.Start()

		if !ns.ReadyForConnections(10 * time.Second) {
			ns.Shutdown()
			return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
		}

		bus.ns = ns
		url = ns.ClientURL()
		bus.logger.Info().Str("url", url).Msg("embedded NATS server started")
	}
	bus.url = url

	nc, err := nats.Connect(url,
		nats.Name("solveit"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				bus.logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			bus.logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		bus.shutdownServer()
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	bus.nc = nc

	js, err := nc.JetStream()
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	bus.js = js

	// AddStream returns the existing stream if config matches; a stream left
	// over with a different config is updated in place.
	streamCfg := &nats.StreamConfig{
		Name:      EventsStream,
		Subjects:  []string{SubjectEvents},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour * 30,
		MaxBytes:  64 * 1024 * 1024,
		Storage:   nats.FileStorage,
		Discard:   nats.DiscardOld,
	}
	if _, err := js.AddStream(streamCfg); err != nil {
		if _, updateErr := js.UpdateStream(streamCfg); updateErr != nil {
			_ = bus.Close()
			return nil, fmt.Errorf("creating/updating events stream: %w (original: %v)", updateErr, err)
		}
	}

	bus.logger.Info().Str("url", url).Msg("connected to NATS JetStream")
	return bus, nil
}

// URL is the address clients connect to.
func (b *EventBus) URL() string { return b.url }

// Publish publishes a KBEvent to the events stream.
func (b *EventBus) Publish(event *KBEvent) error {
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	subject := event.Subject()
	if _, err := b.js.Publish(subject, data); err != nil {
		b.metrics.inc(&b.metrics.EventsFailed)
		return fmt.Errorf("publishing event to %s: %w", subject, err)
	}
	b.metrics.inc(&b.metrics.EventsPublished)

	b.logger.Debug().
		Str("event_id", event.ID).
		Str("subject", subject).
		Msg("event published")
	return nil
}

// Subscribe creates a durable subscription to a subject pattern.
func (b *EventBus) Subscribe(subject, durableName string, handler func(msg *nats.Msg)) error {
	opts := []nats.SubOpt{nats.DeliverNew(), nats.AckExplicit()}
	if durableName != "" {
		opts = append(opts, nats.Durable(durableName))
	}
	sub, err := b.js.Subscribe(subject, handler, opts...)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	b.track(sub)

	b.logger.Debug().Str("subject", subject).Str("durable", durableName).Msg("subscribed")
	return nil
}

// SubscribeToEvents delivers every knowledge base event published after the
// call to handler.
func (b *EventBus) SubscribeToEvents(durableName string, handler func(event *KBEvent)) error {
	return b.Subscribe(SubjectEvents, durableName, func(msg *nats.Msg) {
		event, err := UnmarshalKBEvent(msg.Data)
		if err != nil {
			b.logger.Error().Err(err).Msg("failed to unmarshal event")
			_ = msg.Nak()
			b.metrics.inc(&b.metrics.MessagesNaked)
			return
		}
		handler(event)
		_ = msg.Ack()
		b.metrics.inc(&b.metrics.MessagesAcked)
	})
}

// ServeQueries answers search and entity requests with h. Several
// processes may serve the same bus; each request goes to one of them.
func (b *EventBus) ServeQueries(ctx context.Context, h QueryHandler) error {
	search, err := b.nc.QueueSubscribe(SubjectSearch, queryQueue, func(msg *nats.Msg) {
		var q SearchQuery
		if err := json.Unmarshal(msg.Data, &q); err != nil {
			b.respond(msg, nil, fmt.Errorf("decoding search query: %w", err))
			return
		}
		res, err := h.Search(ctx, q)
		b.respond(msg, res, err)
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", SubjectSearch, err)
	}
	b.track(search)

	entity, err := b.nc.QueueSubscribe(SubjectEntity, queryQueue, func(msg *nats.Msg) {
		var q EntityQuery
		if err := json.Unmarshal(msg.Data, &q); err != nil {
			b.respond(msg, nil, fmt.Errorf("decoding entity query: %w", err))
			return
		}
		res, err := h.Entity(ctx, q)
		b.respond(msg, res, err)
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", SubjectEntity, err)
	}
	b.track(entity)

	b.logger.Info().Strs("subjects", []string{SubjectSearch, SubjectEntity}).Msg("serving queries")
	return nil
}

func (b *EventBus) respond(msg *nats.Msg, data any, err error) {
	reply := QueryReply{OK: err == nil}
	if err != nil {
		reply.Error = err.Error()
		b.metrics.inc(&b.metrics.QueriesFailed)
	} else {
		raw, mErr := json.Marshal(data)
		if mErr != nil {
			reply = QueryReply{Error: "encoding reply: " + mErr.Error()}
			b.metrics.inc(&b.metrics.QueriesFailed)
		} else {
			reply.Data = raw
			b.metrics.inc(&b.metrics.QueriesServed)
		}
	}
	out, _ := json.Marshal(reply)
	if rErr := msg.Respond(out); rErr != nil {
		b.logger.Warn().Err(rErr).Str("subject", msg.Subject).Msg("failed to send reply")
	}
}

// Request sends a query and decodes the reply's data into out. A reply
// carrying an error is returned as an error.
func (b *EventBus) Request(ctx context.Context, subject string, query, out any) error {
	data, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("marshaling query: %w", err)
	}
	msg, err := b.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", subject, err)
	}
	var reply QueryReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("decoding reply: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("%s: %s", subject, reply.Error)
	}
	if out != nil {
		if err := json.Unmarshal(reply.Data, out); err != nil {
			return fmt.Errorf("decoding reply data: %w", err)
		}
	}
	return nil
}

func (b *EventBus) track(sub *nats.Subscription) {
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
}

// Close shuts down the event bus.
func (b *EventBus) Close() error {
	b.mu.Lock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	b.mu.Unlock()

	if b.nc != nil {
		b.nc.Close()
	}
	b.shutdownServer()
	return nil
}

func (b *EventBus) shutdownServer() {
	if b.ns != nil {
		b.ns.Shutdown()
		b.ns.WaitForShutdown()
		b.logger.Info().Msg("embedded NATS server stopped")
	}
}

// IsConnected returns true if the NATS connection is active.
func (b *EventBus) IsConnected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// GetMetrics returns a snapshot of bus metrics.
func (b *EventBus) GetMetrics() map[string]int64 {
	b.metrics.mu.Lock()
	defer b.metrics.mu.Unlock()
	return map[string]int64{
		"events_published": b.metrics.EventsPublished,
		"events_failed":    b.metrics.EventsFailed,
		"queries_served":   b.metrics.QueriesServed,
		"queries_failed":   b.metrics.QueriesFailed,
		"messages_acked":   b.metrics.MessagesAcked,
		"messages_naked":   b.metrics.MessagesNaked,
	}
}
