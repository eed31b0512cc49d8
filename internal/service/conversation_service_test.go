package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wave-social/wave-api/internal/dto"
	"github.com/wave-social/wave-api/internal/models"
)

type stubConversationRepo struct {
	rows map[string]*models.Conversation
}

func newStubConversationRepo() *stubConversationRepo {
	return &stubConversationRepo{rows: make(map[string]*models.Conversation)}
}

func (s *stubConversationRepo) Create(ctx context.Context, conversation *models.Conversation) error {
	conversation.ParticipantA, conversation.ParticipantB = models.NormalizePair(conversation.ParticipantA, conversation.ParticipantB)
	for _, row := range s.rows {
		if row.ParticipantA == conversation.ParticipantA && row.ParticipantB == conversation.ParticipantB {
			return gorm.ErrDuplicatedKey
		}
	}
	now := time.Now()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now
	clone := *conversation
	s.rows[conversation.ID] = &clone
	return nil
}

func (s *stubConversationRepo) FindByID(ctx context.Context, id string) (models.Conversation, error) {
	if row, ok := s.rows[id]; ok {
		return *row, nil
	}
	return models.Conversation{}, gorm.ErrRecordNotFound
}

func (s *stubConversationRepo) FindByParticipants(ctx context.Context, userA, userB string) (models.Conversation, error) {
	a, b := models.NormalizePair(userA, userB)
	for _, row := range s.rows {
		if row.ParticipantA == a && row.ParticipantB == b {
			return *row, nil
		}
	}
	return models.Conversation{}, gorm.ErrRecordNotFound
}

func (s *stubConversationRepo) ListForUser(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	var out []models.Conversation
	for _, row := range s.rows {
		if row.HasParticipant(userID) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *stubConversationRepo) ResetUnread(ctx context.Context, id, userID string) error {
	row, ok := s.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if row.ParticipantA == userID {
		row.UnreadA = 0
	}
	if row.ParticipantB == userID {
		row.UnreadB = 0
	}
	return nil
}

// stubMessageRepo mirrors the production append contract: the insert and
// the summary update are one step.
type stubMessageRepo struct {
	conversations *stubConversationRepo
	messages      []models.Message
	nextID        uint
}

func newStubMessageRepo(conversations *stubConversationRepo) *stubMessageRepo {
	return &stubMessageRepo{conversations: conversations, nextID: 1}
}

func (s *stubMessageRepo) Append(ctx context.Context, message *models.Message) error {
	row, ok := s.conversations.rows[message.ConversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}

	message.ID = s.nextID
	s.nextID++
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	s.messages = append(s.messages, *message)

	row.LastMessageID = &message.ID
	row.LastMessageBody = message.Content
	row.LastMessageSender = message.SenderID
	at := message.CreatedAt
	row.LastMessageAt = &at
	row.UpdatedAt = message.CreatedAt
	if row.ParticipantA != message.SenderID {
		row.UnreadA++
	}
	if row.ParticipantB != message.SenderID {
		row.UnreadB++
	}
	return nil
}

func (s *stubMessageRepo) ListByConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	var out []models.Message
	for _, message := range s.messages {
		if message.ConversationID == conversationID {
			out = append(out, message)
		}
	}
	return out, nil
}

func (s *stubMessageRepo) MarkDelivered(ctx context.Context, ids []uint) error {
	for i := range s.messages {
		for _, id := range ids {
			if s.messages[i].ID == id && s.messages[i].Status == models.MessageStatusSent {
				s.messages[i].Status = models.MessageStatusDelivered
			}
		}
	}
	return nil
}

func (s *stubMessageRepo) MarkReadByRecipient(ctx context.Context, conversationID, readerID string) error {
	for i := range s.messages {
		if s.messages[i].ConversationID == conversationID && s.messages[i].SenderID != readerID {
			s.messages[i].Status = models.MessageStatusRead
		}
	}
	return nil
}

type stubUserRepo struct {
	users map[string]models.User
}

func (s *stubUserRepo) FindByID(ctx context.Context, id string) (models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return models.User{}, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (models.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) ListByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

type stubDispatcher struct {
	calls []models.Message
}

func (s *stubDispatcher) DispatchMessage(ctx context.Context, conversation models.Conversation, message models.Message) {
	s.calls = append(s.calls, message)
}

func newConversationFixture() (ConversationService, *stubConversationRepo, *stubMessageRepo, *stubDispatcher) {
	conversations := newStubConversationRepo()
	messages := newStubMessageRepo(conversations)
	users := &stubUserRepo{users: map[string]models.User{
		"alice": {ID: "alice", Email: "alice@example.com", Name: "Alice"},
		"bob":   {ID: "bob", Email: "bob@example.com", Name: "Bob"},
	}}
	dispatcher := &stubDispatcher{}
	svc := NewConversationService(conversations, messages, users, dispatcher, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	return svc, conversations, messages, dispatcher
}

func TestFindOrCreateIsIdempotentForUnorderedPair(t *testing.T) {
	svc, _, _, _ := newConversationFixture()

	first, err := svc.FindOrCreate(context.Background(), "alice", dto.ConversationCreateRequest{ParticipantID: "bob"})
	require.NoError(t, err)
	require.Zero(t, first.UnreadCount)

	second, err := svc.FindOrCreate(context.Background(), "bob", dto.ConversationCreateRequest{ParticipantID: "alice"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestFindOrCreateRejectsSelfConversation(t *testing.T) {
	svc, _, _, _ := newConversationFixture()

	_, err := svc.FindOrCreate(context.Background(), "alice", dto.ConversationCreateRequest{ParticipantID: "alice"})
	require.ErrorIs(t, err, ErrSelfConversation)
}

func TestSendMessageUpdatesUnreadAndDispatches(t *testing.T) {
	svc, conversations, _, dispatcher := newConversationFixture()

	created, err := svc.FindOrCreate(context.Background(), "alice", dto.ConversationCreateRequest{ParticipantID: "bob"})
	require.NoError(t, err)

	sent, err := svc.SendMessage(context.Background(), "alice", created.ID, dto.MessageSendRequest{Content: "hi"})
	require.NoError(t, err)
	require.Equal(t, models.MessageStatusSent, sent.Status)
	require.True(t, sent.IsMine)

	row := conversations.rows[created.ID]
	require.Equal(t, 1, row.UnreadFor("bob"))
	require.Equal(t, 0, row.UnreadFor("alice"))
	require.Equal(t, "hi", row.LastMessageBody)

	require.Len(t, dispatcher.calls, 1)
	require.Equal(t, "hi", dispatcher.calls[0].Content)
}

func TestSendMessageRejectsEmptyContentAfterSanitization(t *testing.T) {
	svc, _, messages, dispatcher := newConversationFixture()

	created, err := svc.FindOrCreate(context.Background(), "alice", dto.ConversationCreateRequest{ParticipantID: "bob"})
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), "alice", created.ID, dto.MessageSendRequest{Content: "<script>boom()</script>"})
	require.ErrorIs(t, err, ErrEmptyContent)
	require.Empty(t, messages.messages, "validation failure appends nothing")
	require.Empty(t, dispatcher.calls)
}

func TestSendMessageAccessControl(t *testing.T) {
	svc, _, _, _ := newConversationFixture()

	created, err := svc.FindOrCreate(context.Background(), "alice", dto.ConversationCreateRequest{ParticipantID: "bob"})
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), "mallory", created.ID, dto.MessageSendRequest{Content: "hi"})
	require.ErrorIs(t, err, ErrNotParticipant)

	_, err = svc.SendMessage(context.Background(), "alice", "missing-id", dto.MessageSendRequest{Content: "hi"})
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestListMessagesMarksReaderAsCaughtUp(t *testing.T) {
	svc, conversations, messages, _ := newConversationFixture()

	created, err := svc.FindOrCreate(context.Background(), "alice", dto.ConversationCreateRequest{ParticipantID: "bob"})
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		_, err = svc.SendMessage(context.Background(), "alice", created.ID, dto.MessageSendRequest{Content: content})
		require.NoError(t, err)
	}
	require.Equal(t, 3, conversations.rows[created.ID].UnreadFor("bob"))

	thread, err := svc.ListMessages(context.Background(), "bob", created.ID)
	require.NoError(t, err)
	require.Len(t, thread, 3)
	require.Equal(t, []string{"one", "two", "three"}, []string{thread[0].Content, thread[1].Content, thread[2].Content}, "call order preserved")

	require.Equal(t, 0, conversations.rows[created.ID].UnreadFor("bob"), "viewing the thread resets the reader's counter")
	require.Equal(t, 0, conversations.rows[created.ID].UnreadFor("alice"), "sender's counter unchanged")

	for _, message := range messages.messages {
		require.Equal(t, models.MessageStatusRead, message.Status)
	}

	// Listing again is a harmless no-op.
	again, err := svc.ListMessages(context.Background(), "bob", created.ID)
	require.NoError(t, err)
	require.Len(t, again, 3)
	for _, message := range again {
		require.Equal(t, models.MessageStatusRead, message.Status, "read never reverts")
	}
}

func TestListReturnsMostRecentlyActiveFirst(t *testing.T) {
	svc, conversations, _, _ := newConversationFixture()

	first, err := svc.FindOrCreate(context.Background(), "alice", dto.ConversationCreateRequest{ParticipantID: "bob"})
	require.NoError(t, err)
	second, err := svc.FindOrCreate(context.Background(), "alice", dto.ConversationCreateRequest{ParticipantID: "carol"})
	require.NoError(t, err)

	conversations.rows[first.ID].UpdatedAt = time.Now().Add(-time.Hour)
	conversations.rows[second.ID].UpdatedAt = time.Now()

	listed, err := svc.List(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, second.ID, listed[0].ID)
	require.Equal(t, "bob", listed[1].OtherParticipant.ID)
	require.Equal(t, "Bob", listed[1].OtherParticipant.Name)
}
