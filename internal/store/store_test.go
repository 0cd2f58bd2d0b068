package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/models"
	"github.com/fathima-sithara/conversation-service/internal/repository"
)

type recordingHub struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (h *recordingHub) Broadcast(m models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, m)
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

func newTestStore(t *testing.T) (*Store, *repository.MemoryRepository, *recordingHub) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	hub := &recordingHub{}
	return New(repo, hub, nil, nil), repo, hub
}

func mustConversation(t *testing.T, s *Store) *models.Conversation {
	t.Helper()
	c, err := s.GetOrCreate(context.Background(), Participants{StudentID: "stu1", CoachID: "coach1"})
	require.NoError(t, err)
	return c
}

func TestGetOrCreateDeterministic(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.GetOrCreate(ctx, Participants{StudentID: "stu1", CoachID: "coach1"})
	require.NoError(t, err)
	b, err := s.GetOrCreate(ctx, Participants{StudentID: "stu1", CoachID: "coach1"})
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "coach1_stu1", a.ID, "sorted-joined participant ids")
}

func TestAppendAssignsMonotonicOrderingKeys(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	var prev time.Time
	for i := 0; i < 50; i++ {
		m, err := s.Append(ctx, conv.ID, "stu1", models.RoleStudent, "msg", nil, models.KindText)
		require.NoError(t, err)
		assert.True(t, m.CreatedAt.After(prev), "createdAt must be strictly increasing")
		prev = m.CreatedAt
	}
}

func TestAppendRejectsEmptyMessage(t *testing.T) {
	s, _, hub := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	_, err := s.Append(ctx, conv.ID, "stu1", models.RoleStudent, "", nil, models.KindText)
	assert.ErrorIs(t, err, apperr.ErrEmptyMessage)
	assert.Zero(t, hub.count(), "rejected message must not fan out")

	history, err := s.History(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAppendAttachmentOnlyIsValid(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	m, err := s.Append(ctx, conv.ID, "stu1", models.RoleStudent, "",
		[]models.AttachmentRef{{URL: "a.png", Kind: models.MediaImage}}, models.KindText)
	require.NoError(t, err)
	assert.Empty(t, m.Content)
}

func TestAppendRejectsSixthAttachment(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	atts := make([]models.AttachmentRef, 6)
	for i := range atts {
		atts[i] = models.AttachmentRef{URL: "a.png", Kind: models.MediaImage}
	}
	_, err := s.Append(ctx, conv.ID, "stu1", models.RoleStudent, "hi", atts, models.KindText)
	assert.ErrorIs(t, err, apperr.ErrAttachmentLimit)
}

func TestAppendRejectsOversizedContent(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	big := make([]byte, MaxContentBytes+1)
	for i := range big {
		big[i] = 'a'
	}
	_, err := s.Append(ctx, conv.ID, "stu1", models.RoleStudent, string(big), nil, models.KindText)
	assert.ErrorIs(t, err, apperr.ErrMessageTooLarge)
}

func TestAppendUnknownConversation(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Append(context.Background(), "nope", "stu1", models.RoleStudent, "hi", nil, models.KindText)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSenderImplicitlyReadsOwnMessage(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	m, err := s.Append(ctx, conv.ID, "stu1", models.RoleStudent, "hi", nil, models.KindText)
	require.NoError(t, err)
	assert.True(t, m.ReadBy[models.RoleStudent])
	assert.False(t, m.ReadBy[models.RoleCoach])
}

func TestEditContent(t *testing.T) {
	s, _, hub := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	m, err := s.Append(ctx, conv.ID, "stu1", models.RoleStudent, "helo", nil, models.KindText)
	require.NoError(t, err)

	edited, err := s.EditContent(ctx, m.ID, "stu1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Content)
	require.NotNil(t, edited.EditedAt)
	assert.Equal(t, m.CreatedAt, edited.CreatedAt, "editing keeps ordering position")
	assert.Equal(t, 2, hub.count(), "edit re-broadcasts the message")
}

func TestEditByNonSenderDenied(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	m, err := s.Append(ctx, conv.ID, "stu1", models.RoleStudent, "hi", nil, models.KindText)
	require.NoError(t, err)

	_, err = s.EditContent(ctx, m.ID, "coach1", "hijacked")
	assert.ErrorIs(t, err, apperr.ErrPermission)
}

func TestVoiceMessageNotEditable(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	m, err := s.Append(ctx, conv.ID, "coach1", models.RoleCoach, "",
		[]models.AttachmentRef{{URL: "a.webm", Kind: models.MediaVoice}}, models.KindVoice)
	require.NoError(t, err)

	_, err = s.EditContent(ctx, m.ID, "coach1", "transcript")
	assert.ErrorIs(t, err, apperr.ErrVoiceNotEditable)
}

func TestVoiceMessageRequiresSingleVoiceAttachment(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	_, err := s.Append(ctx, conv.ID, "coach1", models.RoleCoach, "", []models.AttachmentRef{
		{URL: "a.webm", Kind: models.MediaVoice},
		{URL: "b.png", Kind: models.MediaImage},
	}, models.KindVoice)
	assert.ErrorIs(t, err, apperr.ErrInvalidVoice)
}

func TestDeleteBySenderOnly(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	m, err := s.Append(ctx, conv.ID, "stu1", models.RoleStudent, "bye", nil, models.KindText)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete(ctx, m.ID, "coach1"), apperr.ErrPermission)
	require.NoError(t, s.Delete(ctx, m.ID, "stu1"))

	history, err := s.History(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDeleteConversationRemovesLog(t *testing.T) {
	s, repo, _ := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	_, err := s.Append(ctx, conv.ID, "stu1", models.RoleStudent, "1", nil, models.KindText)
	require.NoError(t, err)
	_, err = s.Append(ctx, conv.ID, "coach1", models.RoleCoach, "2", nil, models.KindText)
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))

	_, err = repo.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	msgs, err := repo.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHistoryMergesLegacyRecords(t *testing.T) {
	s, repo, _ := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	m1, err := s.Append(ctx, conv.ID, "stu1", models.RoleStudent, "Merhaba", nil, models.KindText)
	require.NoError(t, err)

	// legacy student reply timestamped between the two canonical messages
	legacyAt := m1.CreatedAt.Add(time.Millisecond)
	repo.SeedLegacy(conv.ID, models.LegacyRecord{
		ID:             "rec1",
		ConversationID: conv.ID,
		CreatedAt:      m1.CreatedAt,
		StudentReply:   "teşekkürler",
		StudentReplyAt: legacyAt,
	})

	m2, err := s.Append(ctx, conv.ID, "coach1", models.RoleCoach, "",
		[]models.AttachmentRef{{URL: "a.webm", Kind: models.MediaVoice}}, models.KindVoice)
	require.NoError(t, err)

	history, err := s.History(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, m1.ID, history[0].ID)
	assert.Equal(t, "teşekkürler", history[1].Content)
	assert.Equal(t, models.RoleStudent, history[1].SenderRole)
	assert.Equal(t, m2.ID, history[2].ID)

	// reconciling again yields the identical timeline
	again, err := s.History(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, history, again)
}

func TestConcurrentAppendsStayOrdered(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	conv := mustConversation(t, s)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, conv.ID, "stu1", models.RoleStudent, "x", nil, models.KindText)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history, err := s.History(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, history, n)
	for i := 1; i < n; i++ {
		assert.True(t, history[i].CreatedAt.After(history[i-1].CreatedAt),
			"ordering keys must be strictly monotonic under concurrency")
	}
}

func TestInbox(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	c1, err := s.GetOrCreate(ctx, Participants{StudentID: "stu1", CoachID: "coach1"})
	require.NoError(t, err)
	c2, err := s.GetOrCreate(ctx, Participants{StudentID: "stu1", CoachID: "coach2"})
	require.NoError(t, err)

	_, err = s.Append(ctx, c1.ID, "coach1", models.RoleCoach, "first", nil, models.KindText)
	require.NoError(t, err)
	_, err = s.Append(ctx, c2.ID, "coach2", models.RoleCoach, "second", nil, models.KindText)
	require.NoError(t, err)

	inbox, err := s.Inbox(ctx, "stu1")
	require.NoError(t, err)
	require.Len(t, inbox, 2)

	// ordered by last activity, newest first
	assert.Equal(t, c2.ID, inbox[0].Conversation.ID)
	assert.Equal(t, "second", inbox[0].LastMessage.Content)
	assert.EqualValues(t, 1, inbox[0].UnreadCount)
	assert.Equal(t, c1.ID, inbox[1].Conversation.ID)
}
