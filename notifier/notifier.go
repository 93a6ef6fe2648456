// Package notifier keeps a small inbox per user, services push messages and
// the user takes them all at once with Checkout.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/andrebq/gatekeeper/cassette"
	"github.com/cespare/xxhash/v2"
)

const (
	Namespace      = "notifier"
	ColumnMessages = "messages"

	stripes = 64
)

type (
	Message struct {
		Title     string `json:"title"`
		Message   string `json:"message"`
		Timestamp int64  `json:"timestamp"`
	}

	Notifier struct {
		store cassette.Store
		now   func() time.Time
		rows  [stripes]sync.Mutex
	}
)

func Setup(ctx context.Context, store cassette.Store) error {
	if err := store.CreateColumn(ctx, ColumnMessages); err != nil {
		return fmt.Errorf("unable to create column %v, cause %w", ColumnMessages, err)
	}
	return nil
}

func New(store cassette.Store) *Notifier {
	return &Notifier{store: store, now: time.Now}
}

// Push appends a message to the inbox of row, row is the user id from the
// credentials namespace and is created here on first use.
func (n *Notifier) Push(ctx context.Context, row, title, message string) error {
	mu := n.lock(row)
	mu.Lock()
	defer mu.Unlock()

	if err := n.store.EnsureRow(ctx, row); err != nil {
		return err
	}
	messages, err := n.load(ctx, row)
	if err != nil {
		return err
	}
	messages = append(messages, Message{Title: title, Message: message, Timestamp: n.now().Unix()})
	return n.save(ctx, row, messages)
}

// Checkout returns every pending message and empties the inbox.
func (n *Notifier) Checkout(ctx context.Context, row string) ([]Message, error) {
	mu := n.lock(row)
	mu.Lock()
	defer mu.Unlock()

	if err := n.store.EnsureRow(ctx, row); err != nil {
		return nil, err
	}
	messages, err := n.load(ctx, row)
	if err != nil {
		return nil, err
	}
	if err := n.save(ctx, row, []Message{}); err != nil {
		return nil, err
	}
	return messages, nil
}

func (n *Notifier) lock(row string) *sync.Mutex {
	return &n.rows[xxhash.Sum64String(row)%stripes]
}

func (n *Notifier) load(ctx context.Context, row string) ([]Message, error) {
	raw, ok, err := n.store.Get(ctx, row, ColumnMessages)
	if err != nil {
		return nil, err
	}
	messages := []Message{}
	if !ok {
		return messages, nil
	}
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, fmt.Errorf("unable to decode inbox of %v, cause %w", row, err)
	}
	return messages, nil
}

func (n *Notifier) save(ctx context.Context, row string, messages []Message) error {
	buf, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("unable to encode inbox of %v, cause %w", row, err)
	}
	return n.store.Set(ctx, row, ColumnMessages, string(buf))
}
