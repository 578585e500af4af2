// ABOUTME: msgpack-serializable records for the local snapshot cache
// ABOUTME: Mirrors feed conversation shapes so cached data survives schema drift

package localcache

import (
	"encoding"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

type storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

var _ storeable = (*DBSnapshot)(nil)

// DBSnapshot is a viewer's persisted feed snapshot.
type DBSnapshot struct {
	ViewerID      string           `msgpack:"viewerId"`
	SavedAt       int64            `msgpack:"savedAt"`
	Conversations []DBConversation `msgpack:"conversations"`
}

type DBConversation struct {
	ID           string         `msgpack:"id"`
	Participants []string       `msgpack:"participants"`
	Other        *DBParticipant `msgpack:"other"`
	LastMessage  *DBMessage     `msgpack:"lastMessage"`
	UpdatedAt    int64          `msgpack:"updatedAt"`
	UnreadCount  int            `msgpack:"unreadCount"`
}

type DBParticipant struct {
	ID          string `msgpack:"id"`
	DisplayName string `msgpack:"displayName"`
	AvatarURL   string `msgpack:"avatarUrl"`
	JobTitle    string `msgpack:"jobTitle"`
	Company     string `msgpack:"company"`
}

type DBMessage struct {
	ID        string `msgpack:"id"`
	SenderID  string `msgpack:"senderId"`
	Preview   string `msgpack:"preview"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (s *DBSnapshot) Key() []byte {
	return []byte(s.ViewerID)
}

func (s *DBSnapshot) MarshalBinary() (data []byte, err error) {
	type alias DBSnapshot
	return msgpack.Marshal((*alias)(s))
}

func (s *DBSnapshot) UnmarshalBinary(data []byte) error {
	type alias DBSnapshot
	return msgpack.Unmarshal(data, (*alias)(s))
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
