package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/release-notes-watcher/internal/watcher"
)

func TestPublisherNotify(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "release-notes")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "release-notes-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	publisher := New(topic)
	defer publisher.Stop()

	change := watcher.Change{
		RunID:        "run-1",
		URL:          "https://example.com/notes",
		PreviousHash: "abc123",
		CurrentHash:  "def456",
		Summary:      "- Added feature X",
		DetectedAt:   time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.Notify(ctx, change))

	received := make(chan *pubsub.Message, 1)
	recvCtx, stopRecv := context.WithCancel(ctx)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case received <- msg:
			default:
			}
		})
	}()

	var msg *pubsub.Message
	select {
	case msg = <-received:
	case <-ctx.Done():
		t.Fatal("timed out waiting for change event")
	}
	stopRecv()

	assert.Equal(t, "run-1", msg.Attributes["run_id"])
	assert.Equal(t, "def456", msg.Attributes["current_hash"])
	var got watcher.Change
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, change, got)
}

func TestPublisherNotifyWithoutTopic(t *testing.T) {
	t.Parallel()

	err := New(nil).Notify(context.Background(), watcher.Change{})
	require.Error(t, err)
}
