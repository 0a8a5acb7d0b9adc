package core

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Exerbud/exerbud-backend/internal/store"
)

var (
	ErrNoIdentity           = errors.New("at least one of external id or email is required")
	ErrNotFound             = errors.New("message not found")
	ErrNotOwned             = errors.New("message does not belong to this user")
	ErrNotPinned            = errors.New("message is not pinned")
	ErrUnknownAction        = errors.New("unknown message action")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyContent         = errors.New("message content cannot be empty")
	ErrInvalidRole          = errors.New("invalid message role")
)

// LedgerService is the conversation and progress ledger: identity
// resolution, conversation lifecycle, append-only message history,
// hide/pin overlays, upload records and weekly progress aggregation.
//
// A nil store puts the service in degraded mode: reads come back empty,
// writes log and return success-shaped output. The chat flow must never
// fail merely because history-logging is unavailable.
type LedgerService struct {
	dbStore     *store.SQLiteStore
	reuseWindow time.Duration
}

func NewLedgerService(dbStore *store.SQLiteStore, reuseWindow time.Duration) *LedgerService {
	return &LedgerService{
		dbStore:     dbStore,
		reuseWindow: reuseWindow,
	}
}

// ResolveUser maps an external identity (and optional email) to a durable
// user record, creating it on first contact. Last-seen is bumped strictly
// monotonically on every call; a newly supplied email is backfilled when
// the record has none. At least one identifier is required.
func (s *LedgerService) ResolveUser(externalID, email string) (*store.User, error) {
	if externalID == "" && email == "" {
		return nil, ErrNoIdentity
	}
	if s.dbStore == nil {
		// Degraded: fabricate a transient record so callers keep working.
		log.Println("Persistence disabled, identity not recorded")
		return &store.User{ExternalID: identityKey(externalID, email)}, nil
	}

	var byExternal, byEmail *store.User
	var err error
	if externalID != "" {
		byExternal, err = s.dbStore.GetUserByExternalID(externalID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user by external id: %w", err)
		}
	}
	if email != "" {
		byEmail, err = s.dbStore.GetUserByEmail(email)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user by email: %w", err)
		}
	}

	user := byExternal
	ambiguous := byExternal != nil && byEmail != nil && byExternal.ID != byEmail.ID
	switch {
	case ambiguous:
		// Ambiguous identity: the two identifiers point at different
		// records. The external id wins and the email stays where it is;
		// merging accounts is not this subsystem's call to make.
		log.Printf("Ambiguous identity: external id %q is user %d but email maps to user %d", externalID, byExternal.ID, byEmail.ID)
	case byExternal == nil && byEmail != nil:
		user = byEmail
	case byExternal == nil && byEmail == nil:
		created, err := s.dbStore.CreateUser(identityKey(externalID, email), emailPtr(email))
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		return created, nil
	}

	if email != "" && !ambiguous && user == byExternal {
		if user.Email == nil {
			if err := s.dbStore.SetUserEmail(user.ID, email); err != nil {
				log.Printf("Failed to backfill email for user %d: %v", user.ID, err)
			} else {
				user.Email = &email
			}
		} else if *user.Email != email {
			log.Printf("Ignoring conflicting email for user %d", user.ID)
		}
	}

	lastSeen := time.Now().UTC()
	if !lastSeen.After(user.LastSeenAt) {
		lastSeen = user.LastSeenAt.Add(time.Nanosecond)
	}
	if err := s.dbStore.TouchUser(user.ID, lastSeen); err != nil {
		log.Printf("Failed to bump last-seen for user %d: %v", user.ID, err)
	} else {
		user.LastSeenAt = lastSeen
	}
	return user, nil
}

// identityKey picks the stored external id for a brand-new user. Email-only
// visitors get a derived, stable external id so the unique constraint holds.
func identityKey(externalID, email string) string {
	if externalID != "" {
		return externalID
	}
	return "email:" + email
}

func emailPtr(email string) *string {
	if email == "" {
		return nil
	}
	return &email
}

// findUser is the lookup-only variant for dashboard reads: it never
// creates a record and never bumps last-seen. A miss is nil, not an error.
func (s *LedgerService) findUser(externalID, email string) (*store.User, error) {
	if s.dbStore == nil {
		return nil, nil
	}
	if externalID != "" {
		user, err := s.dbStore.GetUserByExternalID(externalID)
		if err != nil || user != nil {
			return user, err
		}
	}
	if email != "" {
		return s.dbStore.GetUserByEmail(email)
	}
	return nil, nil
}

// ResolveConversation returns the thread a turn belongs to, creating one
// when needed. A supplied id pins the thread: an existing conversation is
// reused (tags refreshed last-write-wins) and an unknown id creates a
// conversation with exactly that id. Without an id, the user's most recent
// conversation started within the reuse window is folded into, so a burst
// of short-lived requests from one session forms a single legible thread.
//
// The reuse lookup is a read-then-maybe-write race under concurrent
// requests; the tolerated outcome is an occasional extra conversation, not
// corruption.
func (s *LedgerService) ResolveConversation(user *store.User, conversationID, coachingMode, workflow, source string) (*store.Conversation, error) {
	if s.dbStore == nil {
		if conversationID == "" {
			conversationID = uuid.NewString()
		}
		return &store.Conversation{ID: conversationID, UserID: user.ID}, nil
	}

	if conversationID != "" {
		conv, err := s.dbStore.GetConversationByID(conversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up conversation: %w", err)
		}
		if conv != nil {
			if conv.UserID != user.ID {
				// A pinned id owned by someone else cannot be adopted.
				log.Printf("Conversation %s belongs to another user, starting a fresh thread", conversationID)
				return s.createConversation(user, "", coachingMode, workflow, source)
			}
			return s.retag(conv, coachingMode, workflow)
		}
		return s.createConversation(user, conversationID, coachingMode, workflow, source)
	}

	conv, err := s.dbStore.GetLatestConversationSince(user.ID, time.Now().UTC().Add(-s.reuseWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to look up reusable conversation: %w", err)
	}
	if conv != nil {
		return s.retag(conv, coachingMode, workflow)
	}
	return s.createConversation(user, "", coachingMode, workflow, source)
}

func (s *LedgerService) createConversation(user *store.User, id, coachingMode, workflow, source string) (*store.Conversation, error) {
	conv := &store.Conversation{
		ID:           id,
		UserID:       user.ID,
		CoachingMode: coachingMode,
		Workflow:     workflow,
		Source:       source,
	}
	if err := s.dbStore.CreateConversation(conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// retag applies last-write-wins mode/workflow tags; an empty incoming tag
// leaves the stored one alone.
func (s *LedgerService) retag(conv *store.Conversation, coachingMode, workflow string) (*store.Conversation, error) {
	newMode, newWorkflow := conv.CoachingMode, conv.Workflow
	if coachingMode != "" {
		newMode = coachingMode
	}
	if workflow != "" {
		newWorkflow = workflow
	}
	if newMode == conv.CoachingMode && newWorkflow == conv.Workflow {
		return conv, nil
	}
	if err := s.dbStore.UpdateConversationTags(conv.ID, newMode, newWorkflow); err != nil {
		log.Printf("Failed to refresh tags on conversation %s: %v", conv.ID, err)
		return conv, nil
	}
	conv.CoachingMode = newMode
	conv.Workflow = newWorkflow
	return conv, nil
}

// AppendMessage writes one immutable turn. userID is nil for assistant
// turns. Only non-empty content and a role from the closed set are
// validated; everything else is a pure insert.
func (s *LedgerService) AppendMessage(conversationID string, userID *int64, role, content string) (*store.Message, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if role != store.RoleUser && role != store.RoleAssistant {
		return nil, ErrInvalidRole
	}
	msg := &store.Message{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		Content:        content,
	}
	if s.dbStore == nil {
		log.Println("Persistence disabled, message not recorded")
		msg.ID = uuid.NewString()
		msg.CreatedAt = time.Now().UTC()
		return msg, nil
	}
	if err := s.dbStore.CreateMessage(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages is the raw conversation read, newest first.
func (s *LedgerService) ListMessages(conversationID string, limit int) ([]store.Message, error) {
	if s.dbStore == nil {
		return nil, nil
	}
	return s.dbStore.GetMessagesByConversationID(conversationID, limit)
}

// ListMessagesForUser is the user-scoped read: hidden rows are omitted and
// pinned rows flagged.
func (s *LedgerService) ListMessagesForUser(userID int64, conversationID string, limit int) ([]store.Message, error) {
	if s.dbStore == nil {
		return nil, nil
	}
	return s.dbStore.GetMessagesForUser(userID, conversationID, limit)
}

// AttachmentMeta is the upload metadata handed over by the upload-handling
// collaborator. The ledger never touches file bytes.
type AttachmentMeta struct {
	ContentRef string `json:"content_ref"`
	MimeType   string `json:"mime_type,omitempty"`
	Workflow   string `json:"workflow,omitempty"`
}

type RecordTurnInput struct {
	ExternalID     string           `json:"external_id,omitempty"`
	Email          string           `json:"email,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	CoachingMode   string           `json:"coaching_mode,omitempty"`
	Workflow       string           `json:"workflow,omitempty"`
	Source         string           `json:"source,omitempty"`
	UserText       string           `json:"user_text,omitempty"`
	Attachments    []AttachmentMeta `json:"attachments,omitempty"`
}

type RecordTurnResult struct {
	ConversationID string `json:"conversation_id"`
	UserExternalID string `json:"user_external_id"`
}

// RecordTurn persists a user's side of an exchange before the external
// chat-completion collaborator is invoked, so a model failure never loses
// the user's input. Side writes (message, uploads) are absorbed and logged
// on failure; only missing identity and conversation-resolution failures
// propagate.
func (s *LedgerService) RecordTurn(in RecordTurnInput) (*RecordTurnResult, error) {
	user, err := s.ResolveUser(in.ExternalID, in.Email)
	if err != nil {
		return nil, err
	}
	conv, err := s.ResolveConversation(user, in.ConversationID, in.CoachingMode, in.Workflow, in.Source)
	if err != nil {
		return nil, err
	}

	if in.UserText != "" {
		if _, err := s.AppendMessage(conv.ID, &user.ID, store.RoleUser, in.UserText); err != nil {
			log.Printf("Failed to store user turn in conversation %s: %v", conv.ID, err)
		}
	}

	for _, att := range in.Attachments {
		if att.ContentRef == "" {
			continue
		}
		s.recordUpload(user.ID, conv.ID, att)
	}

	return &RecordTurnResult{ConversationID: conv.ID, UserExternalID: user.ExternalID}, nil
}

func (s *LedgerService) recordUpload(userID int64, conversationID string, att AttachmentMeta) {
	if s.dbStore == nil {
		log.Println("Persistence disabled, upload not recorded")
		return
	}
	upload := &store.Upload{
		UserID:         userID,
		ConversationID: &conversationID,
		ContentRef:     att.ContentRef,
		MimeType:       att.MimeType,
		Workflow:       att.Workflow,
	}
	if err := s.dbStore.CreateUpload(upload); err != nil {
		log.Printf("Failed to record upload in conversation %s: %v", conversationID, err)
	}
}

type RecordReplyResult struct {
	ConversationID string `json:"conversation_id"`
	CleanedText    string `json:"cleaned_text"`
}

// RecordReply stores the assistant's side of an exchange. The raw reply is
// run through the progress extractor first: the user-visible text is what
// gets persisted and returned, and a recognized embedded payload becomes a
// progress event. A failed event or message insert is absorbed; the caller
// still gets its cleaned text.
func (s *LedgerService) RecordReply(conversationID, rawText string) (*RecordReplyResult, error) {
	cleaned, event := ExtractProgress(rawText)

	if s.dbStore == nil {
		log.Println("Persistence disabled, reply not recorded")
		return &RecordReplyResult{ConversationID: conversationID, CleanedText: cleaned}, nil
	}

	conv, err := s.dbStore.GetConversationByID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	var messageID *string
	if cleaned != "" {
		msg, err := s.AppendMessage(conv.ID, nil, store.RoleAssistant, cleaned)
		if err != nil {
			log.Printf("Failed to store assistant turn in conversation %s: %v", conv.ID, err)
		} else {
			messageID = &msg.ID
		}
	}

	if event != nil {
		if !isValidEventType(event.Type) {
			log.Printf("Discarding progress event with unknown type %q in conversation %s", event.Type, conv.ID)
		} else {
			ev := &store.ProgressEvent{
				UserID:         conv.UserID,
				ConversationID: &conv.ID,
				MessageID:      messageID,
				Type:           event.Type,
				Payload:        event.Payload,
			}
			if err := s.dbStore.CreateProgressEvent(ev); err != nil {
				log.Printf("Failed to store progress event in conversation %s: %v", conv.ID, err)
			}
		}
	}

	return &RecordReplyResult{ConversationID: conv.ID, CleanedText: cleaned}, nil
}

// Message actions accepted by ApplyMessageAction.
const (
	ActionHide  = "hide"
	ActionPin   = "pin"
	ActionUnpin = "unpin"
)

// ApplyMessageAction hides, pins or unpins a message on behalf of a user.
// The message must belong to a conversation owned by the resolving user;
// a wrong owner is ErrNotOwned, deliberately distinct from ErrNotFound.
// Hide and pin are idempotent upserts.
func (s *LedgerService) ApplyMessageAction(action, messageID, externalID, email string) error {
	if externalID == "" && email == "" {
		return ErrNoIdentity
	}
	// An unknown action name is malformed caller input and is rejected
	// before any lookup happens.
	switch action {
	case ActionHide, ActionPin, ActionUnpin:
	default:
		return ErrUnknownAction
	}
	if s.dbStore == nil {
		log.Println("Persistence disabled, message action not recorded")
		return nil
	}

	user, err := s.findUser(externalID, email)
	if err != nil {
		return fmt.Errorf("failed to resolve user: %w", err)
	}
	if user == nil {
		// The caller is identified but owns nothing, so any target message
		// is someone else's.
		return ErrNotOwned
	}

	msg, err := s.dbStore.GetMessageByID(messageID)
	if err != nil {
		return fmt.Errorf("failed to look up message: %w", err)
	}
	if msg == nil {
		return ErrNotFound
	}
	conv, err := s.dbStore.GetConversationByID(msg.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to look up conversation: %w", err)
	}
	if conv == nil || conv.UserID != user.ID {
		return ErrNotOwned
	}

	switch action {
	case ActionHide:
		return s.dbStore.HideMessage(user.ID, msg.ID)
	case ActionPin:
		return s.dbStore.PinMessage(user.ID, msg.ID)
	case ActionUnpin:
		removed, err := s.dbStore.UnpinMessage(user.ID, msg.ID)
		if err != nil {
			return err
		}
		if !removed {
			return ErrNotPinned
		}
		return nil
	default:
		return ErrUnknownAction // unreachable, actions validated above
	}
}

// UploadPreview pairs an upload with the message it most plausibly belongs
// to (see LinkNearestMessage).
type UploadPreview struct {
	Upload        store.Upload   `json:"upload"`
	LinkedMessage *store.Message `json:"linked_message,omitempty"`
}

type AccountSummary struct {
	HasData        bool            `json:"has_data"`
	TotalMessages  int             `json:"total_messages"`
	LastMessageAt  *time.Time      `json:"last_message_at,omitempty"`
	RecentMessages []store.Message `json:"recent_messages,omitempty"`
	Weekly         WeeklySummary   `json:"weekly_summary"`
	Uploads        []UploadPreview `json:"uploads_preview,omitempty"`
}

const (
	recentMessagesLimit = 20
	uploadsPreviewLimit = 9
)

// GetAccountSummary renders the dashboard view. Missing or unknown
// identity answers softly with hasData=false rather than an error, so the
// dashboard renders for not-yet-identified visitors. Partial storage
// failures degrade the affected section and are logged.
func (s *LedgerService) GetAccountSummary(externalID, email string) (*AccountSummary, error) {
	summary := &AccountSummary{}
	if externalID == "" && email == "" {
		return summary, nil
	}

	user, err := s.findUser(externalID, email)
	if err != nil {
		log.Printf("Account summary degraded: %v", err)
		return summary, nil
	}
	if user == nil {
		return summary, nil
	}

	count, lastAt, err := s.dbStore.CountMessagesForUser(user.ID)
	if err != nil {
		log.Printf("Account summary degraded for user %d: %v", user.ID, err)
	} else {
		summary.TotalMessages = count
		summary.LastMessageAt = lastAt
	}

	recent, err := s.dbStore.GetRecentMessagesForUser(user.ID, recentMessagesLimit)
	if err != nil {
		log.Printf("Account summary degraded for user %d: %v", user.ID, err)
	} else {
		summary.RecentMessages = recent
	}

	summary.Weekly = s.WeeklySummary(user.ID)

	uploads, err := s.dbStore.GetRecentUploads(user.ID, uploadsPreviewLimit)
	if err != nil {
		log.Printf("Account summary degraded for user %d: %v", user.ID, err)
	}
	for i := range uploads {
		preview := UploadPreview{Upload: uploads[i]}
		linked, err := s.LinkNearestMessage(&uploads[i])
		if err != nil {
			log.Printf("Failed to link upload %s: %v", uploads[i].ID, err)
		} else {
			preview.LinkedMessage = linked
		}
		summary.Uploads = append(summary.Uploads, preview)
	}

	summary.HasData = summary.TotalMessages > 0 || len(summary.Uploads) > 0
	return summary, nil
}

type ConversationInfo struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	StartedAt     time.Time  `json:"started_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CoachingMode  string     `json:"coaching_mode,omitempty"`
	Workflow      string     `json:"workflow,omitempty"`
}

const conversationTitleLimit = 60

// ListConversations returns the user's threads, newest first, with a title
// derived from the first user turn. Missing or unknown identity answers
// with an empty list.
func (s *LedgerService) ListConversations(externalID, email string) ([]ConversationInfo, error) {
	user, err := s.findUser(externalID, email)
	if err != nil {
		log.Printf("Conversation list degraded: %v", err)
		return nil, nil
	}
	if user == nil {
		return nil, nil
	}

	convs, err := s.dbStore.GetConversationsByUserID(user.ID)
	if err != nil {
		log.Printf("Conversation list degraded for user %d: %v", user.ID, err)
		return nil, nil
	}

	infos := make([]ConversationInfo, 0, len(convs))
	for _, conv := range convs {
		info := ConversationInfo{
			ID:           conv.ID,
			Title:        "Coaching session",
			StartedAt:    conv.StartedAt,
			CoachingMode: conv.CoachingMode,
			Workflow:     conv.Workflow,
		}
		if first, err := s.dbStore.GetFirstUserMessage(conv.ID); err == nil && first != nil {
			info.Title = truncateTitle(first.Content)
		}
		if lastAt, err := s.dbStore.GetLastMessageAt(conv.ID); err == nil {
			info.LastMessageAt = lastAt
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func truncateTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= conversationTitleLimit {
		return content
	}
	return string(runes[:conversationTitleLimit]) + "..."
}
