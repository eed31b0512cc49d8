package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wave-social/wave-api/internal/dto"
	"github.com/wave-social/wave-api/internal/models"
)

type stubNotificationRepo struct {
	rows   []models.Notification
	nextID uint
}

func (s *stubNotificationRepo) Create(ctx context.Context, notification *models.Notification) (bool, error) {
	for _, row := range s.rows {
		if row.DedupeKey == notification.DedupeKey {
			*notification = row
			return false, nil
		}
	}
	s.nextID++
	notification.ID = s.nextID
	s.rows = append(s.rows, *notification)
	return true, nil
}

func (s *stubNotificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var out []models.Notification
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *stubNotificationRepo) MarkRead(ctx context.Context, id uint, userID string) (models.Notification, error) {
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].UserID == userID {
			s.rows[i].Read = true
			return s.rows[i], nil
		}
	}
	return models.Notification{}, gorm.ErrRecordNotFound
}

func (s *stubNotificationRepo) FindByID(ctx context.Context, id uint) (models.Notification, error) {
	for _, row := range s.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return models.Notification{}, gorm.ErrRecordNotFound
}

func newNotificationFixture() (NotificationService, *stubNotificationRepo) {
	repo := &stubNotificationRepo{}
	svc := NewNotificationService(repo, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	return svc, repo
}

func TestNotificationPublishStreamsToSubscribers(t *testing.T) {
	svc, _ := newNotificationFixture()

	stream, cleanup := svc.Subscribe("bob")
	defer cleanup()

	published, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
		UserID:  "bob",
		Type:    "message",
		Message: "Alice says hi",
	})
	require.NoError(t, err)
	require.False(t, published.Read)

	select {
	case received := <-stream:
		require.Equal(t, published.ID, received.ID)
		require.Equal(t, "Alice says hi", received.Message)
	default:
		t.Fatal("subscriber did not receive the notification")
	}
}

func TestNotificationPublishDedupeSkipsRebroadcast(t *testing.T) {
	svc, repo := newNotificationFixture()

	payload := dto.NotificationCreateRequest{
		UserID:    "bob",
		Type:      "comment",
		Message:   "nice post",
		DedupeKey: "comment:42:bob",
	}

	first, err := svc.Publish(context.Background(), payload)
	require.NoError(t, err)

	stream, cleanup := svc.Subscribe("bob")
	defer cleanup()

	retry, err := svc.Publish(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, first.ID, retry.ID)
	require.Len(t, repo.rows, 1)

	select {
	case <-stream:
		t.Fatal("deduplicated publish must not re-notify subscribers")
	default:
	}
}

func TestNotificationPublishRejectsEmptyMessage(t *testing.T) {
	svc, _ := newNotificationFixture()

	_, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
		UserID:  "bob",
		Type:    "message",
		Message: "<img src=x onerror=steal()>",
	})
	require.Error(t, err)
}

func TestNotificationMarkReadMapsNotFound(t *testing.T) {
	svc, _ := newNotificationFixture()

	_, err := svc.MarkRead(context.Background(), 999, "bob")
	require.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestNotificationMarkReadIsIdempotent(t *testing.T) {
	svc, _ := newNotificationFixture()

	published, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
		UserID:  "bob",
		Type:    "like",
		Message: "Alice liked your post",
	})
	require.NoError(t, err)

	marked, err := svc.MarkRead(context.Background(), published.ID, "bob")
	require.NoError(t, err)
	require.True(t, marked.Read)

	again, err := svc.MarkRead(context.Background(), published.ID, "bob")
	require.NoError(t, err)
	require.True(t, again.Read)
}
