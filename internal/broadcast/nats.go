package broadcast

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is where mirrored events are published.
const DefaultSubject = "refactor.events"

// NATSObserver mirrors every event onto a NATS subject so other tools can
// follow the feed without a browser.
type NATSObserver struct {
	conn    *nats.Conn
	subject string
}

// DialNATS connects to url and returns an observer publishing to subject.
func DialNATS(url, subject string) (*NATSObserver, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url, nats.Name("gemini-auto-refactor"))
	if err != nil {
		return nil, fmt.Errorf("broadcast: connect nats %s: %w", url, err)
	}
	return &NATSObserver{conn: nc, subject: subject}, nil
}

func (o *NATSObserver) Subject() string { return o.subject }

func (o *NATSObserver) Send(_ context.Context, payload []byte) error {
	if err := o.conn.Publish(o.subject, payload); err != nil {
		return fmt.Errorf("broadcast: publish %s: %w", o.subject, err)
	}
	return nil
}

func (o *NATSObserver) Close() error {
	if o.conn.IsClosed() {
		return nil
	}
	return o.conn.Drain()
}
