// Package notify delivers user-facing notifications. Delivery is
// fire-and-forget: Notify never returns an error and never blocks on the
// network.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
)

// Notifier is a notification sink.
type Notifier interface {
	Notify(ctx context.Context, title, body string, data map[string]string)
}

// LogNotifier writes notifications to the wallet log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, title, body string, data map[string]string) {
	logger.Info("Notification", "title", title, "body", body, "data", data)
}

// Multi fans a notification out to every sink.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, title, body string, data map[string]string) {
	for _, n := range m {
		n.Notify(ctx, title, body, data)
	}
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

// Notification is one delivered message.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

func (r *Recorder) Notify(_ context.Context, title, body string, data map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Notification{Title: title, Body: body, Data: data})
}

// Sent returns a copy of what has been delivered so far.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

// NostrNotifier publishes each notification as a signed text note to a set
// of relays.
type NostrNotifier struct {
	privateKey string
	publicKey  string
	relays     []string
	timeout    time.Duration

	wg sync.WaitGroup
}

// NewNostrNotifier signs with the hex private key sk.
func NewNostrNotifier(sk string, relays []string) (*NostrNotifier, error) {
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, err
	}
	return &NostrNotifier{
		privateKey: sk,
		publicKey:  pk,
		relays:     relays,
		timeout:    10 * time.Second,
	}, nil
}

// Event builds the signed note for a notification.
func (n *NostrNotifier) Event(title, body string, data map[string]string) (*nostr.Event, error) {
	tags := nostr.Tags{{"subject", title}, {"t", "sip-wallet"}}
	if len(data) > 0 {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		tags = append(tags, nostr.Tag{"data", string(encoded)})
	}
	ev := &nostr.Event{
		PubKey:    n.publicKey,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      1,
		Tags:      tags,
		Content:   title + "\n" + body,
	}
	if err := ev.Sign(n.privateKey); err != nil {
		return nil, err
	}
	return ev, nil
}

func (n *NostrNotifier) Notify(_ context.Context, title, body string, data map[string]string) {
	ev, err := n.Event(title, body, data)
	if err != nil {
		logger.Error("Failed to sign notification event", "error", err)
		return
	}
	for _, url := range n.relays {
		n.wg.Add(1)
		go func(url string) {
			defer n.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
			defer cancel()

			relay, err := nostr.RelayConnect(ctx, url)
			if err != nil {
				logger.Warn("Failed to connect to relay", "relay", url, "error", err)
				return
			}
			defer relay.Close()
			if err := relay.Publish(ctx, *ev); err != nil {
				logger.Warn("Failed to publish notification", "relay", url, "error", err)
			}
		}(url)
	}
}

// Wait blocks until in-flight publishes finish.
func (n *NostrNotifier) Wait() {
	n.wg.Wait()
}
