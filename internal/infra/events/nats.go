package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/propdesk/turnover/internal/domain"
)

// DefaultSubjectPrefix prefixes every published subject.
const DefaultSubjectPrefix = "turnover"

// NATSConfig holds connection settings.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Timeout       time.Duration
}

// NATS publishes each event as JSON on "<prefix>.<event type>", e.g.
// turnover.workflow.completed.
type NATS struct {
	nc     *nats.Conn
	prefix string
}

// NewNATS connects with unlimited reconnects.
func NewNATS(cfg NATSConfig, log *zap.Logger) (*NATS, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("turnover"),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATS{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject an event type is published on.
func Subject(prefix string, t domain.EventType) string {
	return prefix + "." + string(t)
}

// Publish implements domain.EventPublisher.
func (n *NATS) Publish(_ context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.nc.Publish(Subject(n.prefix, ev.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Connected reports whether the connection is currently up.
func (n *NATS) Connected() bool { return n.nc.IsConnected() }

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
		return err
	}
	return nil
}
