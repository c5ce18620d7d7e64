package notify

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Multi{a, b, LogNotifier{}}.Notify(context.Background(), "Payment received", "2 payments", map[string]string{"count": "2"})

	require.Len(t, a.Sent(), 1)
	require.Len(t, b.Sent(), 1)
	assert.Equal(t, "2", a.Sent()[0].Data["count"])
}

func TestNostrEventIsSigned(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	n, err := NewNostrNotifier(sk, nil)
	require.NoError(t, err)

	ev, err := n.Event("Payment received", "1 payment", map[string]string{"total": "5"})
	require.NoError(t, err)

	ok, err := ev.CheckSignature()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, ev.Content, "Payment received")
	assert.Equal(t, "subject", ev.Tags[0][0])

	// No relays: Notify returns immediately.
	n.Notify(context.Background(), "t", "b", nil)
	n.Wait()
}

func TestNostrNotifierRejectsBadKey(t *testing.T) {
	_, err := NewNostrNotifier("not-hex", nil)
	assert.Error(t, err)
}
