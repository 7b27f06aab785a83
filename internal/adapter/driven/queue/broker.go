// Package queue implements the durable channel bus on top of the service's
// SQLite database: partitioned topics, per-group offsets, at-least-once
// delivery, and consumer-side pause/resume. Messages with the same key hash
// to the same partition, so a single account's notifications are processed
// in submission order.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"

	sqliteadapter "github.com/ezysend/dispatch/internal/adapter/driven/sqlite"
	"github.com/ezysend/dispatch/internal/domain/port/driven"
)

// leaseTTL bounds how long a dead consumer can block a partition. It is
// deliberately much larger than any poll interval; a handler that outlives
// its lease only weakens the single-consumer property to at-least-once,
// which downstream resolution already tolerates.
const leaseTTL = 15 * time.Second

// Compile-time interface satisfaction check.
var _ driven.Broker = (*Broker)(nil)

// Broker is the SQLite-backed implementation of the Broker port. It is an
// explicitly constructed, explicitly closed handle owned by the composition
// root; there is no package-level singleton.
type Broker struct {
	db           *sqliteadapter.DB
	partitions   int
	pollInterval time.Duration
	owner        string
	log          *slog.Logger
}

// New creates a broker over the given database. partitions fixes the
// partition count for all topics; pollInterval is how often an idle
// partition consumer checks for new messages.
func New(db *sqliteadapter.DB, partitions int, pollInterval time.Duration, log *slog.Logger) *Broker {
	if partitions < 1 {
		partitions = 1
	}
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}

	return &Broker{
		db:           db,
		partitions:   partitions,
		pollInterval: pollInterval,
		owner:        uuid.NewString(),
		log:          log,
	}
}

// Publish durably appends a message to the partition derived from key. The
// single writer connection serializes appends, making the per-partition
// sequence gap-free.
func (b *Broker) Publish(ctx context.Context, topic, key string, value []byte) error {
	if topic == "" {
		return errors.New("publish: topic cannot be empty")
	}

	part := b.partitionFor(key)

	const query = `INSERT INTO queue_messages (topic, part, seq, key, value, enqueued_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq) + 1, 0) FROM queue_messages WHERE topic = ? AND part = ?), ?, ?, ?)`

	_, err := b.db.Writer.ExecContext(ctx, query,
		topic, part, topic, part, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("publish to %s/%d: %w", topic, part, err)
	}

	return nil
}

// Subscribe starts one consumer goroutine per partition for the given group
// and delivers messages to h. Delivery is at-least-once: the group offset
// advances only after h returns nil.
func (b *Broker) Subscribe(ctx context.Context, topic, group string, h driven.Handler) (driven.Subscription, error) {
	if topic == "" || group == "" {
		return nil, errors.New("subscribe: topic and group cannot be empty")
	}
	if h == nil {
		return nil, errors.New("subscribe: handler cannot be nil")
	}

	sub := &Subscription{
		broker:  b,
		topic:   topic,
		group:   group,
		handler: h,
		owner:   b.owner + "/" + uuid.NewString(),
		stopCh:  make(chan struct{}),
		log:     b.log.With("topic", topic, "group", group),
	}

	sub.wg.Add(b.partitions)
	for part := 0; part < b.partitions; part++ {
		go sub.run(ctx, part)
	}

	b.log.Info("subscription started", "topic", topic, "group", group, "partitions", b.partitions)
	return sub, nil
}

// PurgeCommitted deletes messages already acknowledged by every consumer
// group that has committed an offset for their partition. Topics without any
// committed offset are left untouched.
func (b *Broker) PurgeCommitted(ctx context.Context) (int64, error) {
	const query = `DELETE FROM queue_messages WHERE seq < (
		SELECT MIN(o.next_offset) FROM queue_offsets o
		WHERE o.topic = queue_messages.topic AND o.part = queue_messages.part)`

	result, err := b.db.Writer.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("purge committed messages: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	return rows, nil
}

func (b *Broker) partitionFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(b.partitions))
}

// acquireLease claims or renews a partition for the given subscription
// owner. It succeeds when the partition is unclaimed, already held by this
// owner, or held by an owner whose lease expired.
func (b *Broker) acquireLease(ctx context.Context, topic, group string, part int, owner string) (bool, error) {
	now := time.Now().UnixMilli()
	expires := now + leaseTTL.Milliseconds()

	const query = `INSERT INTO queue_leases (topic, grp, part, owner, expires_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (topic, grp, part) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE queue_leases.owner = excluded.owner OR queue_leases.expires_at < ?`

	result, err := b.db.Writer.ExecContext(ctx, query, topic, group, part, owner, expires, now)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s/%s/%d: %w", topic, group, part, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

// releaseLeases gives up all partitions held by the given owner for a
// topic/group so a successor can take over immediately.
func (b *Broker) releaseLeases(ctx context.Context, topic, group, owner string) error {
	const query = `DELETE FROM queue_leases WHERE topic = ? AND grp = ? AND owner = ?`

	if _, err := b.db.Writer.ExecContext(ctx, query, topic, group, owner); err != nil {
		return fmt.Errorf("release leases %s/%s: %w", topic, group, err)
	}

	return nil
}

// nextMessage returns the first unacknowledged message on a partition for
// the group, or nil when the partition is drained.
func (b *Broker) nextMessage(ctx context.Context, topic, group string, part int) (*driven.Message, error) {
	var next int64
	err := b.db.Reader.QueryRowContext(ctx,
		`SELECT next_offset FROM queue_offsets WHERE topic = ? AND grp = ? AND part = ?`,
		topic, group, part).Scan(&next)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read offset %s/%s/%d: %w", topic, group, part, err)
	}

	msg := driven.Message{Topic: topic, Partition: part}
	err = b.db.Reader.QueryRowContext(ctx,
		`SELECT seq, key, value FROM queue_messages WHERE topic = ? AND part = ? AND seq >= ? ORDER BY seq LIMIT 1`,
		topic, part, next).Scan(&msg.Offset, &msg.Key, &msg.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read message %s/%d: %w", topic, part, err)
	}

	return &msg, nil
}

// commitOffset advances the group's offset for a partition. The guarded
// update keeps offsets monotonic even if a stale consumer commits late.
func (b *Broker) commitOffset(ctx context.Context, topic, group string, part int, next int64) error {
	const query = `INSERT INTO queue_offsets (topic, grp, part, next_offset) VALUES (?, ?, ?, ?)
		ON CONFLICT (topic, grp, part) DO UPDATE SET next_offset = excluded.next_offset
		WHERE excluded.next_offset > queue_offsets.next_offset`

	if _, err := b.db.Writer.ExecContext(ctx, query, topic, group, part, next); err != nil {
		return fmt.Errorf("commit offset %s/%s/%d: %w", topic, group, part, err)
	}

	return nil
}
