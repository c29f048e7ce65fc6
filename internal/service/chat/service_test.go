package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"carelink-backend/internal/domain"
)

// MockMessageRepo is a mock implementation of MessageRepo
type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Save(ctx context.Context, message *domain.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockMessageRepo) GetConversation(ctx context.Context, a, b string, bucket, limit int, pageState []byte) ([]*domain.Message, []byte, error) {
	args := m.Called(ctx, a, b, bucket, limit, pageState)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]*domain.Message), args.Get(1).([]byte), args.Error(2)
}

func (m *MockMessageRepo) GetRecent(ctx context.Context, a, b string, limit, maxBuckets int) ([]*domain.Message, error) {
	args := m.Called(ctx, a, b, limit, maxBuckets)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

type recordingRelay struct {
	sent []struct {
		To    string
		Event string
		Data  interface{}
	}
}

func (r *recordingRelay) Send(to, event string, data interface{}) {
	r.sent = append(r.sent, struct {
		To    string
		Event string
		Data  interface{}
	}{to, event, data})
}

func TestSendMessagePersistsAndRelays(t *testing.T) {
	repo := new(MockMessageRepo)
	relay := &recordingRelay{}
	svc := NewService(repo, relay)

	repo.On("Save", mock.Anything, mock.MatchedBy(func(msg *domain.Message) bool {
		return msg.SenderID == "alice" && msg.ReceiverID == "bob" && msg.Content == "hello"
	})).Return(nil)

	msg, err := svc.SendMessage(context.Background(), "alice", &domain.MessageCreate{
		ReceiverID:  "bob",
		Content:     "hello",
		MessageType: "text",
	})

	require.NoError(t, err)
	assert.NotZero(t, msg.MessageID)
	assert.NotZero(t, msg.Bucket)

	require.Len(t, relay.sent, 1)
	assert.Equal(t, "bob", relay.sent[0].To)
	assert.Equal(t, "message", relay.sent[0].Event)
	payload := relay.sent[0].Data.(MessagePayload)
	assert.Equal(t, msg.MessageID, payload.MessageID)
	assert.Equal(t, "alice", payload.SenderID)
	assert.Equal(t, "hello", payload.Content)

	repo.AssertExpectations(t)
}

func TestSendMessageDefaultsTypeToText(t *testing.T) {
	repo := new(MockMessageRepo)
	relay := &recordingRelay{}
	svc := NewService(repo, relay)

	repo.On("Save", mock.Anything, mock.Anything).Return(nil)

	msg, err := svc.SendMessage(context.Background(), "alice", &domain.MessageCreate{
		ReceiverID: "bob",
		Content:    "hi",
	})

	require.NoError(t, err)
	assert.Equal(t, "text", msg.MessageType)
}

func TestSendMessageRejectsInvalidInput(t *testing.T) {
	repo := new(MockMessageRepo)
	relay := &recordingRelay{}
	svc := NewService(repo, relay)

	cases := []struct {
		name  string
		input *domain.MessageCreate
	}{
		{"empty content", &domain.MessageCreate{ReceiverID: "bob"}},
		{"oversized content", &domain.MessageCreate{ReceiverID: "bob", Content: strings.Repeat("x", 10001)}},
		{"missing receiver", &domain.MessageCreate{Content: "hi"}},
		{"self receiver", &domain.MessageCreate{ReceiverID: "alice", Content: "hi"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SendMessage(context.Background(), "alice", tc.input)
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}

	assert.Empty(t, relay.sent)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSendMessageDoesNotRelayOnSaveFailure(t *testing.T) {
	repo := new(MockMessageRepo)
	relay := &recordingRelay{}
	svc := NewService(repo, relay)

	repo.On("Save", mock.Anything, mock.Anything).Return(errors.New("cassandra down"))

	_, err := svc.SendMessage(context.Background(), "alice", &domain.MessageCreate{
		ReceiverID: "bob",
		Content:    "hello",
	})

	assert.Error(t, err)
	assert.Empty(t, relay.sent)
}

func TestGetRecentMessagesClampsLimit(t *testing.T) {
	repo := new(MockMessageRepo)
	svc := NewService(repo, &recordingRelay{})

	repo.On("GetRecent", mock.Anything, "alice", "bob", 20, historyScanDays).
		Return([]*domain.Message{}, nil).Twice()

	_, err := svc.GetRecentMessages(context.Background(), "alice", "bob", 0)
	require.NoError(t, err)
	_, err = svc.GetRecentMessages(context.Background(), "alice", "bob", 5000)
	require.NoError(t, err)

	repo.AssertExpectations(t)
}
