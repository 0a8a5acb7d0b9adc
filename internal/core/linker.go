package core

import (
	"fmt"

	"github.com/Exerbud/exerbud-backend/internal/store"
)

// LinkNearestMessage finds the message an upload most plausibly belongs to.
// Uploads and messages are written by separate code paths with no ordering
// guarantee, so exact co-occurrence cannot be assumed; instead we prefer
// the first assistant message at or after the upload (the reply that
// discusses it) and fall back to the most recent message before it (the
// turn that prompted it). Returns nil when the upload has no conversation
// or the conversation has no messages.
func (s *LedgerService) LinkNearestMessage(u *store.Upload) (*store.Message, error) {
	if s.dbStore == nil || u.ConversationID == nil {
		return nil, nil
	}

	msg, err := s.dbStore.GetMessageAtOrAfter(*u.ConversationID, store.RoleAssistant, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to find reply for upload %s: %w", u.ID, err)
	}
	if msg != nil {
		return msg, nil
	}

	msg, err = s.dbStore.GetMessageAtOrBefore(*u.ConversationID, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to find prompting turn for upload %s: %w", u.ID, err)
	}
	return msg, nil
}
