// ABOUTME: On-disk snapshot cache for instant feed paint on reconnect
// ABOUTME: Stores per-viewer feed snapshots and badge counts in a bbolt file

package localcache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hearthlabs/hearth/internal/feed"
)

// ErrNoSnapshot is returned when no usable snapshot exists for a viewer.
var ErrNoSnapshot = errors.New("no cached snapshot")

var (
	bucketFeeds    = []byte("feeds")
	bucketCounters = []byte("counters")
)

// DefaultTTL is how long a persisted snapshot stays usable.
const DefaultTTL = 24 * time.Hour

// Cache persists feed snapshots and badge counts between sessions so a
// reconnecting client can paint immediately while the live snapshot loads.
type Cache struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the snapshot expiry horizon.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// Open opens (or creates) the cache file at path.
func Open(path string, opts ...Option) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketFeeds); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketCounters); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating cache buckets: %w", err)
	}

	c := &Cache{db: db, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close closes the underlying database file.
func (c *Cache) Close() error {
	return c.db.Close()
}

// SaveSnapshot persists a viewer's current feed.
func (c *Cache) SaveSnapshot(viewerID string, conversations []*feed.Conversation) error {
	snap := &DBSnapshot{
		ViewerID:      viewerID,
		SavedAt:       c.now().UnixMilli(),
		Conversations: make([]DBConversation, 0, len(conversations)),
	}
	for _, conv := range conversations {
		snap.Conversations = append(snap.Conversations, toDBConversation(conv))
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		data, err := snap.MarshalBinary()
		if err != nil {
			return fmt.Errorf("marshaling snapshot: %w", err)
		}
		return tx.Bucket(bucketFeeds).Put(snap.Key(), data)
	})
}

// LoadSnapshot returns the viewer's persisted feed, or ErrNoSnapshot when
// none exists or the stored one is older than the TTL.
func (c *Cache) LoadSnapshot(viewerID string) ([]*feed.Conversation, time.Time, error) {
	var snap DBSnapshot
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFeeds).Get([]byte(viewerID))
		if data == nil {
			return ErrNoSnapshot
		}
		return snap.UnmarshalBinary(data)
	})
	if err != nil {
		return nil, time.Time{}, err
	}

	savedAt := millisToTime(snap.SavedAt)
	if c.now().Sub(savedAt) > c.ttl {
		return nil, time.Time{}, ErrNoSnapshot
	}

	conversations := make([]*feed.Conversation, 0, len(snap.Conversations))
	for i := range snap.Conversations {
		conversations = append(conversations, fromDBConversation(&snap.Conversations[i]))
	}
	return conversations, savedAt, nil
}

// SaveCount persists a viewer's badge count.
func (c *Cache) SaveCount(viewerID string, count int) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(count))
		return tx.Bucket(bucketCounters).Put([]byte(viewerID), buf)
	})
}

// LoadCount returns the viewer's persisted badge count, or ErrNoSnapshot.
func (c *Cache) LoadCount(viewerID string) (int, error) {
	var count int
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCounters).Get([]byte(viewerID))
		if data == nil {
			return ErrNoSnapshot
		}
		count = int(binary.BigEndian.Uint64(data))
		return nil
	})
	return count, err
}

// Delete removes everything cached for the viewer.
func (c *Cache) Delete(viewerID string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		key := []byte(viewerID)
		if err := tx.Bucket(bucketFeeds).Delete(key); err != nil {
			return err
		}
		return tx.Bucket(bucketCounters).Delete(key)
	})
}

func toDBConversation(conv *feed.Conversation) DBConversation {
	db := DBConversation{
		ID:           conv.ID,
		Participants: append([]string(nil), conv.Participants...),
		UpdatedAt:    timeToMillis(conv.UpdatedAt),
		UnreadCount:  conv.UnreadCount,
	}
	if conv.Other != nil {
		db.Other = &DBParticipant{
			ID:          conv.Other.ID,
			DisplayName: conv.Other.DisplayName,
			AvatarURL:   conv.Other.AvatarURL,
			JobTitle:    conv.Other.JobTitle,
			Company:     conv.Other.Company,
		}
	}
	if conv.LastMessage != nil {
		db.LastMessage = &DBMessage{
			ID:        conv.LastMessage.ID,
			SenderID:  conv.LastMessage.SenderID,
			Preview:   conv.LastMessage.Content,
			CreatedAt: timeToMillis(conv.LastMessage.CreatedAt),
		}
	}
	return db
}

func fromDBConversation(db *DBConversation) *feed.Conversation {
	conv := &feed.Conversation{
		ID:           db.ID,
		Participants: append([]string(nil), db.Participants...),
		UpdatedAt:    millisToTime(db.UpdatedAt),
		UnreadCount:  db.UnreadCount,
	}
	if db.Other != nil {
		conv.Other = &feed.Participant{
			ID:          db.Other.ID,
			DisplayName: db.Other.DisplayName,
			AvatarURL:   db.Other.AvatarURL,
			JobTitle:    db.Other.JobTitle,
			Company:     db.Other.Company,
		}
	}
	if db.LastMessage != nil {
		conv.LastMessage = &feed.MessageSummary{
			ID:        db.LastMessage.ID,
			SenderID:  db.LastMessage.SenderID,
			Content:   db.LastMessage.Preview,
			CreatedAt: millisToTime(db.LastMessage.CreatedAt),
		}
	}
	return conv
}
