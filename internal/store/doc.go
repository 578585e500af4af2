// Package store provides persistent storage for hearth using SQLite.
//
// # Architecture
//
// The store package exposes a single Store interface covering members,
// conversations, messages, referrals, push subscriptions, and tour
// progress. SQLiteStore implements it on modernc.org/sqlite; MockStore
// implements it in memory for tests.
//
// # Data Models
//
//   - Member: club member profile (handle, display name, job metadata)
//   - Conversation: a message thread; two-party threads carry a unique
//     pair key so creation is idempotent per member pair
//   - Message: one message with a read flag and creation timestamp
//   - ConversationSummary: a conversation as one viewer sees it, with the
//     last-message digest, the other participant's profile snapshot, and
//     the viewer's unread count
//   - Referral: a business referral with a status lifecycle and value
//   - PushSubscription: a Web Push endpoint registered by a browser
//
// # Read Watermarks
//
// Unread counts are not stored; they are derived. Each participant row
// carries a last_read_at watermark, and a message is unread for a viewer
// when it was sent by someone else after that watermark. Marking a
// conversation read advances the watermark and flips the read flag on the
// counterparty's messages in the same transaction.
//
// # Timestamps
//
// Timestamps are stored as TEXT in RFC 3339 form with a fixed-width
// nanosecond fraction, so SQLite's lexicographic TEXT comparison orders
// rows chronologically.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicateConversation: Pair key already exists
//   - ErrDuplicateMember: Handle already taken
//   - ErrDuplicateMessage: Message id already recorded
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests, or NewSQLiteStore(":memory:") for
// integration tests with real SQLite.
package store
