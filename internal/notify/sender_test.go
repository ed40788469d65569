package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listingmod/internal/logging"
)

func TestDispatcherDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	d := NewDispatcher(SenderFunc(func(ctx context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.ListingID)
		return nil
	}), 8, logging.Discard())

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, d.Publish(Event{Kind: KindListingTransition, ListingID: id}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestDispatcherDropsWhenFullAndAfterClose(t *testing.T) {
	release := make(chan struct{})
	d := NewDispatcher(SenderFunc(func(ctx context.Context, e Event) error {
		<-release
		return errors.New("sink unavailable")
	}), 1, logging.Discard())

	accepted := 0
	for i := 0; i < 5; i++ {
		if d.Publish(Event{Kind: KindReportHandled}) {
			accepted++
		}
	}
	// One event may be in flight plus one buffered.
	assert.LessOrEqual(t, accepted, 2)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.False(t, d.Publish(Event{Kind: KindReportHandled}))
	require.NoError(t, d.Close(ctx), "close is idempotent")
}

func TestLogSender(t *testing.T) {
	l, hook := logtest.NewNullLogger()
	require.NoError(t, LogSender{Log: l}.Send(context.Background(), Event{Kind: KindListingTransition, ListingID: "l-1", From: "pending", To: "published"}))
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "l-1", hook.LastEntry().Data["listing_id"])
	assert.Equal(t, "published", hook.LastEntry().Data["to"])
}
