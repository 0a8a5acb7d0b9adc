package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        external_id TEXT UNIQUE NOT NULL,
        email TEXT UNIQUE,
        created_at DATETIME NOT NULL,
        last_seen_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID, or a caller-pinned id
        user_id INTEGER NOT NULL,
        started_at DATETIME NOT NULL,
        ended_at DATETIME,
        coaching_mode TEXT NOT NULL DEFAULT '',
        workflow TEXT NOT NULL DEFAULT '',
        source TEXT NOT NULL DEFAULT '',
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations (user_id, started_at);

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        user_id INTEGER, -- NULL for assistant turns
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );
    CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at);

    CREATE TABLE IF NOT EXISTS hidden_messages (
        user_id INTEGER NOT NULL,
        message_id TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        PRIMARY KEY (user_id, message_id)
    );

    CREATE TABLE IF NOT EXISTS pinned_messages (
        user_id INTEGER NOT NULL,
        message_id TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        PRIMARY KEY (user_id, message_id)
    );

    CREATE TABLE IF NOT EXISTS uploads (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        conversation_id TEXT,
        content_ref TEXT NOT NULL,
        mime_type TEXT NOT NULL DEFAULT '',
        workflow TEXT NOT NULL DEFAULT '',
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_uploads_user ON uploads (user_id, created_at);

    CREATE TABLE IF NOT EXISTS progress_events (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        conversation_id TEXT,
        message_id TEXT,
        event_type TEXT NOT NULL CHECK (event_type IN ('meal_log', 'body_scan', 'workout_plan', 'insight')),
        payload TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_progress_events_user ON progress_events (user_id, created_at);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) GetUserByExternalID(externalID string) (*User, error) {
	return s.getUser("SELECT id, external_id, email, created_at, last_seen_at FROM users WHERE external_id = ?", externalID)
}

func (s *SQLiteStore) GetUserByEmail(email string) (*User, error) {
	return s.getUser("SELECT id, external_id, email, created_at, last_seen_at FROM users WHERE email = ?", email)
}

func (s *SQLiteStore) getUser(query string, arg any) (*User, error) {
	var user User
	var email sql.NullString
	err := s.db.QueryRow(query, arg).Scan(&user.ID, &user.ExternalID, &email, &user.CreatedAt, &user.LastSeenAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if email.Valid {
		user.Email = &email.String
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(externalID string, email *string) (*User, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec("INSERT INTO users (external_id, email, created_at, last_seen_at) VALUES (?, ?, ?, ?)",
		externalID, email, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return &User{ID: id, ExternalID: externalID, Email: email, CreatedAt: now, LastSeenAt: now}, nil
}

// TouchUser bumps last_seen_at. lastSeen must be strictly greater than the
// stored value; the caller guarantees monotonicity.
func (s *SQLiteStore) TouchUser(userID int64, lastSeen time.Time) error {
	_, err := s.db.Exec("UPDATE users SET last_seen_at = ? WHERE id = ?", lastSeen, userID)
	if err != nil {
		return fmt.Errorf("failed to touch user: %w", err)
	}
	return nil
}

// SetUserEmail backfills an email onto a user that has none.
func (s *SQLiteStore) SetUserEmail(userID int64, email string) error {
	_, err := s.db.Exec("UPDATE users SET email = ? WHERE id = ? AND email IS NULL", email, userID)
	if err != nil {
		return fmt.Errorf("failed to set user email: %w", err)
	}
	return nil
}

// Conversation methods

func (s *SQLiteStore) GetConversationByID(conversationID string) (*Conversation, error) {
	var conv Conversation
	var endedAt sql.NullTime
	err := s.db.QueryRow("SELECT id, user_id, started_at, ended_at, coaching_mode, workflow, source FROM conversations WHERE id = ?", conversationID).
		Scan(&conv.ID, &conv.UserID, &conv.StartedAt, &endedAt, &conv.CoachingMode, &conv.Workflow, &conv.Source)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if endedAt.Valid {
		conv.EndedAt = &endedAt.Time
	}
	return &conv, nil
}

// GetLatestConversationSince returns the user's most recent conversation
// started at or after the given instant, or nil.
func (s *SQLiteStore) GetLatestConversationSince(userID int64, since time.Time) (*Conversation, error) {
	var conv Conversation
	var endedAt sql.NullTime
	err := s.db.QueryRow(`
        SELECT id, user_id, started_at, ended_at, coaching_mode, workflow, source
        FROM conversations
        WHERE user_id = ? AND started_at >= ?
        ORDER BY started_at DESC, id DESC
        LIMIT 1`, userID, since).
		Scan(&conv.ID, &conv.UserID, &conv.StartedAt, &endedAt, &conv.CoachingMode, &conv.Workflow, &conv.Source)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest conversation: %w", err)
	}
	if endedAt.Valid {
		conv.EndedAt = &endedAt.Time
	}
	return &conv, nil
}

// CreateConversation inserts a conversation. A caller-pinned ID is kept;
// an empty ID gets a server-assigned UUID.
func (s *SQLiteStore) CreateConversation(conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.StartedAt.IsZero() {
		conv.StartedAt = time.Now().UTC()
	}
	_, err := s.db.Exec("INSERT INTO conversations (id, user_id, started_at, coaching_mode, workflow, source) VALUES (?, ?, ?, ?, ?, ?)",
		conv.ID, conv.UserID, conv.StartedAt, conv.CoachingMode, conv.Workflow, conv.Source)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

// UpdateConversationTags applies last-write-wins mode/workflow tags.
func (s *SQLiteStore) UpdateConversationTags(conversationID, coachingMode, workflow string) error {
	_, err := s.db.Exec("UPDATE conversations SET coaching_mode = ?, workflow = ? WHERE id = ?",
		coachingMode, workflow, conversationID)
	if err != nil {
		return fmt.Errorf("failed to update conversation tags: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConversationsByUserID(userID int64) ([]Conversation, error) {
	rows, err := s.db.Query(`
        SELECT id, user_id, started_at, ended_at, coaching_mode, workflow, source
        FROM conversations
        WHERE user_id = ?
        ORDER BY started_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var conv Conversation
		var endedAt sql.NullTime
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.StartedAt, &endedAt, &conv.CoachingMode, &conv.Workflow, &conv.Source); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		if endedAt.Valid {
			conv.EndedAt = &endedAt.Time
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// Message methods

// CreateMessage appends one immutable turn. There is no update path for
// messages by design.
func (s *SQLiteStore) CreateMessage(msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	stmt, err := s.db.Prepare("INSERT INTO messages (id, conversation_id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(msg.ID, msg.ConversationID, msg.UserID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMessageByID(messageID string) (*Message, error) {
	var msg Message
	var userID sql.NullInt64
	err := s.db.QueryRow("SELECT id, conversation_id, user_id, role, content, created_at FROM messages WHERE id = ?", messageID).
		Scan(&msg.ID, &msg.ConversationID, &userID, &msg.Role, &msg.Content, &msg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if userID.Valid {
		msg.UserID = &userID.Int64
	}
	return &msg, nil
}

// GetMessagesByConversationID returns the newest messages first, ties broken
// by id so the order is stable.
func (s *SQLiteStore) GetMessagesByConversationID(conversationID string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
        SELECT id, conversation_id, user_id, role, content, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetMessagesForUser is the user-scoped read: rows the user has hidden are
// filtered out in the query, and pinned rows come back flagged. The stored
// messages are never touched.
func (s *SQLiteStore) GetMessagesForUser(userID int64, conversationID string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
        SELECT m.id, m.conversation_id, m.user_id, m.role, m.content, m.created_at,
               p.message_id IS NOT NULL AS pinned
        FROM messages m
        LEFT JOIN pinned_messages p ON p.message_id = m.id AND p.user_id = ?
        WHERE m.conversation_id = ?
          AND NOT EXISTS (
              SELECT 1 FROM hidden_messages h WHERE h.message_id = m.id AND h.user_id = ?
          )
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT ?`, userID, conversationID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query user messages: %w", err)
	}
	defer rows.Close()
	return scanFlaggedMessages(rows)
}

// GetRecentMessagesForUser spans all of the user's conversations, with the
// same hidden filter and pinned flag as GetMessagesForUser.
func (s *SQLiteStore) GetRecentMessagesForUser(userID int64, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
        SELECT m.id, m.conversation_id, m.user_id, m.role, m.content, m.created_at,
               p.message_id IS NOT NULL AS pinned
        FROM messages m
        JOIN conversations c ON c.id = m.conversation_id
        LEFT JOIN pinned_messages p ON p.message_id = m.id AND p.user_id = ?
        WHERE c.user_id = ?
          AND NOT EXISTS (
              SELECT 1 FROM hidden_messages h WHERE h.message_id = m.id AND h.user_id = ?
          )
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT ?`, userID, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()
	return scanFlaggedMessages(rows)
}

// GetAssistantMessagesSince feeds the heuristic aggregation path.
func (s *SQLiteStore) GetAssistantMessagesSince(userID int64, since time.Time) ([]Message, error) {
	rows, err := s.db.Query(`
        SELECT m.id, m.conversation_id, m.user_id, m.role, m.content, m.created_at
        FROM messages m
        JOIN conversations c ON c.id = m.conversation_id
        WHERE c.user_id = ? AND m.role = 'assistant' AND m.created_at >= ?
        ORDER BY m.created_at ASC, m.id ASC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query assistant messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// CountMessagesForUser returns the user's total message count and the time
// of the newest message, nil when there are none. The newest time comes
// from a plain column read rather than MAX(): the sqlite driver only keeps
// the DATETIME decltype on bare column references, so an aggregate would
// come back as an unscannable string.
func (s *SQLiteStore) CountMessagesForUser(userID int64) (int, *time.Time, error) {
	var count int
	err := s.db.QueryRow(`
        SELECT COUNT(m.id)
        FROM messages m
        JOIN conversations c ON c.id = m.conversation_id
        WHERE c.user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if count == 0 {
		return 0, nil, nil
	}

	var lastAt time.Time
	err = s.db.QueryRow(`
        SELECT m.created_at
        FROM messages m
        JOIN conversations c ON c.id = m.conversation_id
        WHERE c.user_id = ?
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT 1`, userID).Scan(&lastAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return count, nil, nil
		}
		return 0, nil, fmt.Errorf("failed to get newest message time: %w", err)
	}
	return count, &lastAt, nil
}

// GetFirstUserMessage returns the oldest user-role turn of a conversation,
// used to derive a display title.
func (s *SQLiteStore) GetFirstUserMessage(conversationID string) (*Message, error) {
	var msg Message
	var userID sql.NullInt64
	err := s.db.QueryRow(`
        SELECT id, conversation_id, user_id, role, content, created_at
        FROM messages
        WHERE conversation_id = ? AND role = 'user'
        ORDER BY created_at ASC, id ASC
        LIMIT 1`, conversationID).
		Scan(&msg.ID, &msg.ConversationID, &userID, &msg.Role, &msg.Content, &msg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get first user message: %w", err)
	}
	if userID.Valid {
		msg.UserID = &userID.Int64
	}
	return &msg, nil
}

// GetLastMessageAt returns the time of a conversation's newest message,
// nil when it has none. Bare column read for the same decltype reason as
// CountMessagesForUser.
func (s *SQLiteStore) GetLastMessageAt(conversationID string) (*time.Time, error) {
	var lastAt time.Time
	err := s.db.QueryRow(`
        SELECT created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT 1`, conversationID).Scan(&lastAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last message time: %w", err)
	}
	return &lastAt, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var msg Message
		var userID sql.NullInt64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &userID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if userID.Valid {
			msg.UserID = &userID.Int64
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func scanFlaggedMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var msg Message
		var userID sql.NullInt64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &userID, &msg.Role, &msg.Content, &msg.CreatedAt, &msg.Pinned); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if userID.Valid {
			msg.UserID = &userID.Int64
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Overlay methods. Hide and pin are upserts so repeating an action is a
// no-op success; the composite primary key enforces one row per
// (user, message) pair.

func (s *SQLiteStore) HideMessage(userID int64, messageID string) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO hidden_messages (user_id, message_id, created_at) VALUES (?, ?, ?)",
		userID, messageID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to hide message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UnhideMessage(userID int64, messageID string) error {
	_, err := s.db.Exec("DELETE FROM hidden_messages WHERE user_id = ? AND message_id = ?", userID, messageID)
	if err != nil {
		return fmt.Errorf("failed to unhide message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PinMessage(userID int64, messageID string) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO pinned_messages (user_id, message_id, created_at) VALUES (?, ?, ?)",
		userID, messageID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to pin message: %w", err)
	}
	return nil
}

// UnpinMessage reports whether a pin row was actually removed.
func (s *SQLiteStore) UnpinMessage(userID int64, messageID string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM pinned_messages WHERE user_id = ? AND message_id = ?", userID, messageID)
	if err != nil {
		return false, fmt.Errorf("failed to unpin message: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// Upload methods

func (s *SQLiteStore) CreateUpload(u *Upload) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec("INSERT INTO uploads (id, user_id, conversation_id, content_ref, mime_type, workflow, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.UserID, u.ConversationID, u.ContentRef, u.MimeType, u.Workflow, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRecentUploads(userID int64, limit int) ([]Upload, error) {
	rows, err := s.db.Query(`
        SELECT id, user_id, conversation_id, content_ref, mime_type, workflow, created_at
        FROM uploads
        WHERE user_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		var u Upload
		var convID sql.NullString
		if err := rows.Scan(&u.ID, &u.UserID, &convID, &u.ContentRef, &u.MimeType, &u.Workflow, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload row: %w", err)
		}
		if convID.Valid {
			u.ConversationID = &convID.String
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// GetMessageAtOrAfter returns the first message of the given role in a
// conversation at or after t, oldest first.
func (s *SQLiteStore) GetMessageAtOrAfter(conversationID, role string, t time.Time) (*Message, error) {
	return s.getOneMessage(`
        SELECT id, conversation_id, user_id, role, content, created_at
        FROM messages
        WHERE conversation_id = ? AND role = ? AND created_at >= ?
        ORDER BY created_at ASC, id ASC
        LIMIT 1`, conversationID, role, t)
}

// GetMessageAtOrBefore returns the most recent message of any role in a
// conversation at or before t.
func (s *SQLiteStore) GetMessageAtOrBefore(conversationID string, t time.Time) (*Message, error) {
	return s.getOneMessage(`
        SELECT id, conversation_id, user_id, role, content, created_at
        FROM messages
        WHERE conversation_id = ? AND created_at <= ?
        ORDER BY created_at DESC, id DESC
        LIMIT 1`, conversationID, t)
}

func (s *SQLiteStore) getOneMessage(query string, args ...any) (*Message, error) {
	var msg Message
	var userID sql.NullInt64
	err := s.db.QueryRow(query, args...).
		Scan(&msg.ID, &msg.ConversationID, &userID, &msg.Role, &msg.Content, &msg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	if userID.Valid {
		msg.UserID = &userID.Int64
	}
	return &msg, nil
}

// ProgressEvent methods

func (s *SQLiteStore) CreateProgressEvent(ev *ProgressEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec("INSERT INTO progress_events (id, user_id, conversation_id, message_id, event_type, payload, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		ev.ID, ev.UserID, ev.ConversationID, ev.MessageID, ev.Type, ev.Payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert progress event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProgressEventsSince(userID int64, since time.Time) ([]ProgressEvent, error) {
	rows, err := s.db.Query(`
        SELECT id, user_id, conversation_id, message_id, event_type, payload, created_at
        FROM progress_events
        WHERE user_id = ? AND created_at >= ?
        ORDER BY created_at ASC, id ASC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress events: %w", err)
	}
	defer rows.Close()

	var events []ProgressEvent
	for rows.Next() {
		var ev ProgressEvent
		var convID, msgID sql.NullString
		if err := rows.Scan(&ev.ID, &ev.UserID, &convID, &msgID, &ev.Type, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan progress event row: %w", err)
		}
		if convID.Valid {
			ev.ConversationID = &convID.String
		}
		if msgID.Valid {
			ev.MessageID = &msgID.String
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
