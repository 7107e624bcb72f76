// Package feed subscribes to a NATS subject carrying session archives and
// hands each payload to the ingestion pipeline as it arrives.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Config holds the NATS subscription settings.
type Config struct {
	URL     string
	Subject string
	Queue   string // optional queue group; empty means plain subscribe
}

// DefaultConfig returns settings for a local NATS server.
func DefaultConfig() Config {
	return Config{
		URL:     nats.DefaultURL,
		Subject: "f1.sessions",
	}
}

// Handler processes one session archive payload. A non-nil error is
// reported but does not stop the subscription: one bad session must not
// take down the feed.
type Handler func(data []byte) error

// Watch subscribes and blocks until ctx is done. Handler errors are passed
// to onError (nil means they are silently dropped).
func Watch(ctx context.Context, cfg Config, handle Handler, onError func(error)) error {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	cb := func(msg *nats.Msg) {
		if err := handle(msg.Data); err != nil && onError != nil {
			onError(fmt.Errorf("subject %s: %w", msg.Subject, err))
		}
	}

	var sub *nats.Subscription
	if cfg.Queue != "" {
		sub, err = nc.QueueSubscribe(cfg.Subject, cfg.Queue, cb)
	} else {
		sub, err = nc.Subscribe(cfg.Subject, cb)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	<-ctx.Done()

	// Let in-flight handlers finish before closing the connection.
	if err := nc.Drain(); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	return ctx.Err()
}
