package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqliteadapter "github.com/ezysend/dispatch/internal/adapter/driven/sqlite"
	"github.com/ezysend/dispatch/internal/domain/port/driven"
)

const testPoll = 10 * time.Millisecond

// setupBroker creates a broker over a fresh file-backed database. File-backed
// because the broker exercises both the reader and writer pools concurrently.
func setupBroker(t *testing.T, partitions int) *Broker {
	t.Helper()

	ctx := context.Background()
	db, err := sqliteadapter.NewDB(ctx, filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqliteadapter.RunMigrations(db.Writer))

	return New(db, partitions, testPoll, slog.Default())
}

// collector records delivered message values in order.
type collector struct {
	mu     sync.Mutex
	values []string
}

func (c *collector) handler(_ context.Context, m driven.Message, _ driven.Consumer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, string(m.Value))
	return nil
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.values...)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

func TestBroker_PublishValidation(t *testing.T) {
	b := setupBroker(t, 1)

	err := b.Publish(context.Background(), "", "k", []byte("v"))
	assert.Error(t, err)
}

func TestBroker_SubscribeValidation(t *testing.T) {
	b := setupBroker(t, 1)
	ctx := context.Background()

	_, err := b.Subscribe(ctx, "", "g", func(context.Context, driven.Message, driven.Consumer) error { return nil })
	assert.Error(t, err)

	_, err = b.Subscribe(ctx, "t", "", func(context.Context, driven.Message, driven.Consumer) error { return nil })
	assert.Error(t, err)

	_, err = b.Subscribe(ctx, "t", "g", nil)
	assert.Error(t, err)
}

func TestBroker_DeliversInOrder(t *testing.T) {
	b := setupBroker(t, 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(ctx, "orders", "acct", fmt.Appendf(nil, "msg-%d", i)))
	}

	var c collector
	sub, err := b.Subscribe(ctx, "orders", "g1", c.handler)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	require.Eventually(t, func() bool { return c.len() == 5 }, 5*time.Second, testPoll)
	assert.Equal(t, []string{"msg-0", "msg-1", "msg-2", "msg-3", "msg-4"}, c.snapshot())
}

func TestBroker_SameKeySamePartition(t *testing.T) {
	b := setupBroker(t, 4)
	ctx := context.Background()

	part := b.partitionFor("acct-42")
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, "orders", "acct-42", []byte("v")))
	}

	var other int
	err := b.db.Reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_messages WHERE topic = 'orders' AND part != ?`, part).Scan(&other)
	require.NoError(t, err)
	assert.Zero(t, other, "all messages for one key land on one partition")
}

func TestBroker_RedeliversOnHandlerError(t *testing.T) {
	b := setupBroker(t, 1)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "orders", "acct", []byte("poisoned-once")))

	var mu sync.Mutex
	var attempts int
	handler := func(_ context.Context, m driven.Message, _ driven.Consumer) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("first attempt fails")
		}
		return nil
	}

	sub, err := b.Subscribe(ctx, "orders", "g1", handler)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 2
	}, 5*time.Second, testPoll)
}

func TestBroker_OffsetsSurviveResubscribe(t *testing.T) {
	b := setupBroker(t, 1)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "orders", "acct", []byte("first")))

	var c collector
	sub, err := b.Subscribe(ctx, "orders", "g1", c.handler)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.len() == 1 }, 5*time.Second, testPoll)
	require.NoError(t, sub.Close())

	require.NoError(t, b.Publish(ctx, "orders", "acct", []byte("second")))

	sub, err = b.Subscribe(ctx, "orders", "g1", c.handler)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	require.Eventually(t, func() bool { return c.len() == 2 }, 5*time.Second, testPoll)
	assert.Equal(t, []string{"first", "second"}, c.snapshot(), "acknowledged messages are not redelivered")
}

func TestBroker_GroupsConsumeIndependently(t *testing.T) {
	b := setupBroker(t, 1)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "orders", "acct", []byte("shared")))

	var c1, c2 collector
	sub1, err := b.Subscribe(ctx, "orders", "g1", c1.handler)
	require.NoError(t, err)
	defer func() { _ = sub1.Close() }()

	sub2, err := b.Subscribe(ctx, "orders", "g2", c2.handler)
	require.NoError(t, err)
	defer func() { _ = sub2.Close() }()

	require.Eventually(t, func() bool { return c1.len() == 1 && c2.len() == 1 },
		5*time.Second, testPoll)
}

func TestBroker_PauseDefersDelivery(t *testing.T) {
	b := setupBroker(t, 1)
	ctx := context.Background()

	var c collector
	sub, err := b.Subscribe(ctx, "orders", "g1", c.handler)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	sub.Pause(time.Hour)
	require.NoError(t, b.Publish(ctx, "orders", "acct", []byte("held")))

	time.Sleep(20 * testPoll)
	assert.Zero(t, c.len(), "paused subscription must not deliver")

	sub.Resume()
	require.Eventually(t, func() bool { return c.len() == 1 }, 5*time.Second, testPoll)
}

func TestBroker_PauseExpiresOnItsOwn(t *testing.T) {
	b := setupBroker(t, 1)
	ctx := context.Background()

	var c collector
	sub, err := b.Subscribe(ctx, "orders", "g1", c.handler)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	sub.Pause(50 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, "orders", "acct", []byte("delayed")))

	require.Eventually(t, func() bool { return c.len() == 1 }, 5*time.Second, testPoll)
}

func TestBroker_PurgeCommitted(t *testing.T) {
	b := setupBroker(t, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, "orders", "acct", fmt.Appendf(nil, "msg-%d", i)))
	}

	var c collector
	sub, err := b.Subscribe(ctx, "orders", "g1", c.handler)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.len() == 3 }, 5*time.Second, testPoll)
	require.NoError(t, sub.Close())

	purged, err := b.PurgeCommitted(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, purged)
}

func TestBroker_PurgeKeepsUncommitted(t *testing.T) {
	b := setupBroker(t, 1)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "orders", "acct", []byte("unread")))

	// No group has committed an offset for this topic yet.
	purged, err := b.PurgeCommitted(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestBroker_HandlerSeesTopicAndOffset(t *testing.T) {
	b := setupBroker(t, 1)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "orders", "acct", []byte("v")))

	var mu sync.Mutex
	var got driven.Message
	var seen bool
	sub, err := b.Subscribe(ctx, "orders", "g1", func(_ context.Context, m driven.Message, _ driven.Consumer) error {
		mu.Lock()
		defer mu.Unlock()
		got = m
		seen = true
		return nil
	})
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen
	}, 5*time.Second, testPoll)

	assert.Equal(t, "orders", got.Topic)
	assert.Equal(t, "acct", got.Key)
	assert.EqualValues(t, 0, got.Offset)
}
