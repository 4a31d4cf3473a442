package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}

func TestPublish_RejectsBeforeTouchingConnection(t *testing.T) {
	p := &Publisher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, "escrow.listing.listed", map[string]string{"a": "b"}), context.Canceled)

	// channels are not JSON encodable
	assert.Error(t, p.Publish(context.Background(), "escrow.listing.listed", make(chan int)))

	p.Close()
}

func TestPing_WithoutConnection(t *testing.T) {
	assert.Error(t, (&Publisher{}).Ping())
}
