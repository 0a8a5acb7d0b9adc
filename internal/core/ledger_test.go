package core

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Exerbud/exerbud-backend/internal/store"
)

func newTestLedger(t *testing.T) (*LedgerService, *store.SQLiteStore) {
	t.Helper()
	dbStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })
	return NewLedgerService(dbStore, 45*time.Minute), dbStore
}

func TestResolveUserIsIdempotent(t *testing.T) {
	ledger, _ := newTestLedger(t)

	first, err := ledger.ResolveUser("guest:abc", "")
	require.NoError(t, err)
	second, err := ledger.ResolveUser("guest:abc", "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.LastSeenAt.After(first.LastSeenAt),
		"last-seen must strictly increase between calls")
}

func TestResolveUserRequiresIdentity(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.ResolveUser("", "")
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestResolveUserBackfillsEmail(t *testing.T) {
	ledger, _ := newTestLedger(t)

	first, err := ledger.ResolveUser("guest:abc", "")
	require.NoError(t, err)
	assert.Nil(t, first.Email)

	second, err := ledger.ResolveUser("guest:abc", "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.Email)
	assert.Equal(t, "sam@example.com", *second.Email)
}

func TestResolveUserEmailOnly(t *testing.T) {
	ledger, _ := newTestLedger(t)

	first, err := ledger.ResolveUser("", "sam@example.com")
	require.NoError(t, err)

	second, err := ledger.ResolveUser("", "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestResolveUserAmbiguousIdentityKeepsBothRecords(t *testing.T) {
	ledger, _ := newTestLedger(t)

	viaEmail, err := ledger.ResolveUser("", "sam@example.com")
	require.NoError(t, err)
	viaExternal, err := ledger.ResolveUser("guest:abc", "")
	require.NoError(t, err)
	require.NotEqual(t, viaEmail.ID, viaExternal.ID)

	// Both identifiers now point at different users: the external id wins
	// and neither record is merged or mutated.
	resolved, err := ledger.ResolveUser("guest:abc", "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, viaExternal.ID, resolved.ID)
	assert.Nil(t, resolved.Email)
}

func TestResolveConversationReusesWithinWindow(t *testing.T) {
	ledger, _ := newTestLedger(t)
	user, err := ledger.ResolveUser("guest:abc", "")
	require.NoError(t, err)

	first, err := ledger.ResolveConversation(user, "", "nutrition", "", "web")
	require.NoError(t, err)
	second, err := ledger.ResolveConversation(user, "", "", "meal_scan", "web")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "requests within the reuse window fold into one thread")
	// Tags are refreshed last-write-wins; an empty incoming tag keeps the
	// stored one.
	assert.Equal(t, "nutrition", second.CoachingMode)
	assert.Equal(t, "meal_scan", second.Workflow)
}

func TestResolveConversationExpiredWindowStartsFresh(t *testing.T) {
	ledger, dbStore := newTestLedger(t)
	ledger.reuseWindow = time.Minute
	user, err := ledger.ResolveUser("guest:abc", "")
	require.NoError(t, err)

	stale := &store.Conversation{UserID: user.ID, StartedAt: time.Now().UTC().Add(-2 * time.Minute)}
	require.NoError(t, dbStore.CreateConversation(stale))

	conv, err := ledger.ResolveConversation(user, "", "", "", "web")
	require.NoError(t, err)
	assert.NotEqual(t, stale.ID, conv.ID)
}

func TestResolveConversationPinnedID(t *testing.T) {
	ledger, _ := newTestLedger(t)
	user, err := ledger.ResolveUser("guest:abc", "")
	require.NoError(t, err)

	conv, err := ledger.ResolveConversation(user, "thread-42", "", "", "web")
	require.NoError(t, err)
	assert.Equal(t, "thread-42", conv.ID)

	again, err := ledger.ResolveConversation(user, "thread-42", "", "", "web")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
}

func TestResolveConversationForeignPinnedID(t *testing.T) {
	ledger, _ := newTestLedger(t)
	owner, err := ledger.ResolveUser("guest:owner", "")
	require.NoError(t, err)
	intruder, err := ledger.ResolveUser("guest:intruder", "")
	require.NoError(t, err)

	_, err = ledger.ResolveConversation(owner, "thread-42", "", "", "web")
	require.NoError(t, err)

	conv, err := ledger.ResolveConversation(intruder, "thread-42", "", "", "web")
	require.NoError(t, err)
	assert.NotEqual(t, "thread-42", conv.ID)
	assert.Equal(t, intruder.ID, conv.UserID)
}

func TestAppendMessageValidation(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.AppendMessage("conv", nil, store.RoleAssistant, "")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = ledger.AppendMessage("conv", nil, "system", "hello")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestRecordReplyStoresEventAndCleanText(t *testing.T) {
	ledger, dbStore := newTestLedger(t)

	turn, err := ledger.RecordTurn(RecordTurnInput{
		ExternalID: "guest:abc",
		UserText:   "here's my dinner",
		Workflow:   "meal_scan",
	})
	require.NoError(t, err)

	raw := "Looks balanced overall.\n[[PROGRESS_LOG]]{\"type\":\"meal_log\",\"calories\":640,\"quality\":72}[[/PROGRESS_LOG]]"
	reply, err := ledger.RecordReply(turn.ConversationID, raw)
	require.NoError(t, err)
	assert.Equal(t, "Looks balanced overall.", reply.CleanedText)

	user, err := dbStore.GetUserByExternalID("guest:abc")
	require.NoError(t, err)
	events, err := dbStore.GetProgressEventsSince(user.ID, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventMealLog, events[0].Type)
	require.NotNil(t, events[0].MessageID)

	messages, err := ledger.ListMessages(turn.ConversationID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.NotContains(t, messages[0].Content, "PROGRESS_LOG")
}

func TestRecordReplyMalformedPayloadKeepsText(t *testing.T) {
	ledger, dbStore := newTestLedger(t)

	turn, err := ledger.RecordTurn(RecordTurnInput{ExternalID: "guest:abc", UserText: "hi"})
	require.NoError(t, err)

	reply, err := ledger.RecordReply(turn.ConversationID, "Done!\n[[PROGRESS_LOG]]{oops[[/PROGRESS_LOG]]")
	require.NoError(t, err)
	assert.Equal(t, "Done!", reply.CleanedText)

	user, err := dbStore.GetUserByExternalID("guest:abc")
	require.NoError(t, err)
	events, err := dbStore.GetProgressEventsSince(user.ID, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events, "a malformed payload is never stored")
}

func TestRecordReplyUnknownConversation(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.RecordReply("no-such-thread", "hello")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestRecordTurnStoresUploads(t *testing.T) {
	ledger, dbStore := newTestLedger(t)

	turn, err := ledger.RecordTurn(RecordTurnInput{
		ExternalID: "guest:abc",
		UserText:   "photo attached",
		Attachments: []AttachmentMeta{
			{ContentRef: "https://cdn.example.com/u/1.jpg", MimeType: "image/jpeg", Workflow: "meal_scan"},
			{ContentRef: ""}, // no reference, skipped
		},
	})
	require.NoError(t, err)

	user, err := dbStore.GetUserByExternalID("guest:abc")
	require.NoError(t, err)
	uploads, err := dbStore.GetRecentUploads(user.ID, 10)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	require.NotNil(t, uploads[0].ConversationID)
	assert.Equal(t, turn.ConversationID, *uploads[0].ConversationID)
}

func TestLinkNearestMessagePrefersLaterReply(t *testing.T) {
	ledger, dbStore := newTestLedger(t)
	user, err := dbStore.CreateUser("guest:abc", nil)
	require.NoError(t, err)
	conv := &store.Conversation{UserID: user.ID}
	require.NoError(t, dbStore.CreateConversation(conv))

	t0 := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	prior := &store.Message{ConversationID: conv.ID, UserID: &user.ID, Role: store.RoleUser, Content: "lunch pic", CreatedAt: t0.Add(-5 * time.Second)}
	require.NoError(t, dbStore.CreateMessage(prior))

	upload := &store.Upload{UserID: user.ID, ConversationID: &conv.ID, ContentRef: "ref", CreatedAt: t0}
	require.NoError(t, dbStore.CreateUpload(upload))

	// Only a prior message exists: fall back to it.
	linked, err := ledger.LinkNearestMessage(upload)
	require.NoError(t, err)
	require.NotNil(t, linked)
	assert.Equal(t, prior.ID, linked.ID)

	// Once a later assistant reply exists, it wins.
	reply := &store.Message{ConversationID: conv.ID, Role: store.RoleAssistant, Content: "analysis of your plate", CreatedAt: t0.Add(5 * time.Second)}
	require.NoError(t, dbStore.CreateMessage(reply))

	linked, err = ledger.LinkNearestMessage(upload)
	require.NoError(t, err)
	require.NotNil(t, linked)
	assert.Equal(t, reply.ID, linked.ID)
}

func TestApplyMessageActionOwnership(t *testing.T) {
	ledger, _ := newTestLedger(t)

	turn, err := ledger.RecordTurn(RecordTurnInput{ExternalID: "guest:owner", UserText: "mine"})
	require.NoError(t, err)
	messages, err := ledger.ListMessages(turn.ConversationID, 1)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	messageID := messages[0].ID

	_, err = ledger.ResolveUser("guest:other", "")
	require.NoError(t, err)

	// Someone else's message is a permission error, not a not-found.
	err = ledger.ApplyMessageAction(ActionHide, messageID, "guest:other", "")
	assert.ErrorIs(t, err, ErrNotOwned)

	err = ledger.ApplyMessageAction(ActionHide, "no-such-message", "guest:owner", "")
	assert.ErrorIs(t, err, ErrNotFound)

	err = ledger.ApplyMessageAction("shout", messageID, "guest:owner", "")
	assert.ErrorIs(t, err, ErrUnknownAction)

	// A malformed action name is rejected before the message lookup, so
	// it never turns into a not-found answer.
	err = ledger.ApplyMessageAction("shout", "no-such-message", "guest:owner", "")
	assert.ErrorIs(t, err, ErrUnknownAction)

	err = ledger.ApplyMessageAction(ActionHide, messageID, "", "")
	assert.ErrorIs(t, err, ErrNoIdentity)

	err = ledger.ApplyMessageAction(ActionUnpin, messageID, "guest:owner", "")
	assert.ErrorIs(t, err, ErrNotPinned)

	require.NoError(t, ledger.ApplyMessageAction(ActionPin, messageID, "guest:owner", ""))
	require.NoError(t, ledger.ApplyMessageAction(ActionUnpin, messageID, "guest:owner", ""))
}

func TestHiddenMessageLeavesRecordIntact(t *testing.T) {
	ledger, _ := newTestLedger(t)

	turn, err := ledger.RecordTurn(RecordTurnInput{ExternalID: "guest:abc", UserText: "hide this later"})
	require.NoError(t, err)
	messages, err := ledger.ListMessages(turn.ConversationID, 1)
	require.NoError(t, err)
	messageID := messages[0].ID

	require.NoError(t, ledger.ApplyMessageAction(ActionHide, messageID, "guest:abc", ""))
	// Hiding twice is a no-op success.
	require.NoError(t, ledger.ApplyMessageAction(ActionHide, messageID, "guest:abc", ""))

	user, err := ledger.ResolveUser("guest:abc", "")
	require.NoError(t, err)

	scoped, err := ledger.ListMessagesForUser(user.ID, turn.ConversationID, 10)
	require.NoError(t, err)
	assert.Empty(t, scoped)

	raw, err := ledger.ListMessages(turn.ConversationID, 10)
	require.NoError(t, err)
	assert.Len(t, raw, 1, "the underlying message row is never deleted")
}

func TestEndToEndFirstContact(t *testing.T) {
	ledger, _ := newTestLedger(t)

	// Before any contact the dashboard answers softly.
	empty, err := ledger.GetAccountSummary("guest:abc", "")
	require.NoError(t, err)
	assert.False(t, empty.HasData)

	turn, err := ledger.RecordTurn(RecordTurnInput{
		ExternalID:   "guest:abc",
		CoachingMode: "nutrition",
		UserText:     "What should I eat after a run?",
	})
	require.NoError(t, err)
	assert.Equal(t, "guest:abc", turn.UserExternalID)

	_, err = ledger.RecordReply(turn.ConversationID, "Something light with protein and carbs.")
	require.NoError(t, err)

	summary, err := ledger.GetAccountSummary("guest:abc", "")
	require.NoError(t, err)
	assert.True(t, summary.HasData)
	assert.Equal(t, 2, summary.TotalMessages)
	require.NotNil(t, summary.LastMessageAt)
	assert.Len(t, summary.RecentMessages, 2)
	assert.Zero(t, summary.Weekly.MealsCount)

	infos, err := ledger.ListConversations("guest:abc", "")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, turn.ConversationID, infos[0].ID)
	assert.Equal(t, "What should I eat after a run?", infos[0].Title)
	assert.Equal(t, "nutrition", infos[0].CoachingMode)
	require.NotNil(t, infos[0].LastMessageAt)
}

func TestGetAccountSummaryMissingIdentity(t *testing.T) {
	ledger, _ := newTestLedger(t)

	summary, err := ledger.GetAccountSummary("", "")
	require.NoError(t, err)
	assert.False(t, summary.HasData)

	infos, err := ledger.ListConversations("", "")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestDegradedModeNeverFails(t *testing.T) {
	ledger := NewLedgerService(nil, 45*time.Minute)

	turn, err := ledger.RecordTurn(RecordTurnInput{ExternalID: "guest:abc", UserText: "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, turn.ConversationID)

	reply, err := ledger.RecordReply(turn.ConversationID, "hello [[PROGRESS_LOG]]{\"type\":\"insight\"}[[/PROGRESS_LOG]]")
	require.NoError(t, err)
	assert.Equal(t, "hello", reply.CleanedText)

	summary, err := ledger.GetAccountSummary("guest:abc", "")
	require.NoError(t, err)
	assert.False(t, summary.HasData)

	require.NoError(t, ledger.ApplyMessageAction(ActionHide, "any", "guest:abc", ""))
}
