package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jishnu70/Chat-app-backend/internal/mocks"
	"github.com/jishnu70/Chat-app-backend/internal/models"
	"github.com/jishnu70/Chat-app-backend/internal/repositories"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func direct(id, sender, receiver int, content string, at time.Duration) models.Message {
	return models.Message{ID: id, SenderID: sender, ReceiverID: &receiver, Content: content, CreatedAt: base.Add(at)}
}

func inGroup(id, sender, groupID int, content string, at time.Duration) models.Message {
	return models.Message{ID: id, SenderID: sender, GroupID: &groupID, Content: content, CreatedAt: base.Add(at)}
}

func strPtr(s string) *string { return &s }

type fixture struct {
	users    *mocks.UserRepositoryMock
	groups   *mocks.GroupRepositoryMock
	messages *mocks.MessageRepositoryMock
	agg      *Aggregator
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		users:    new(mocks.UserRepositoryMock),
		groups:   new(mocks.GroupRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
	}
	f.agg = NewAggregator(f.users, f.groups, f.messages, zaptest.NewLogger(t))
	return f
}

func TestListChatsCollapsesPairToLatest(t *testing.T) {
	f := newFixture(t)
	// A=1, B=2: A->B at t1, B->A at t2, A->B at t3.
	f.messages.On("ListDirectForUser", mock.Anything, 1).Return([]models.Message{
		direct(3, 1, 2, "third", 3*time.Minute),
		direct(2, 2, 1, "second", 2*time.Minute),
		direct(1, 1, 2, "first", time.Minute),
	}, nil)
	f.users.On("GetByIDs", mock.Anything, []int{2}).Return([]models.User{{ID: 2, Email: "b@example.com", DisplayName: strPtr("Bea")}}, nil)
	f.groups.On("ListGroupsForUser", mock.Anything, 1).Return([]models.Group{}, nil)

	chats, err := f.agg.ListChats(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, chats, 1)
	assert.Equal(t, 2, chats[0].ChatID)
	assert.Equal(t, "Bea", chats[0].Title)
	assert.Equal(t, "third", chats[0].LastMessage)
	require.NotNil(t, chats[0].Timestamp)
	assert.True(t, chats[0].Timestamp.Equal(base.Add(3*time.Minute)))
	assert.False(t, chats[0].IsGroup)
}

func TestListChatsOrdersDirectThenGroups(t *testing.T) {
	f := newFixture(t)
	f.messages.On("ListDirectForUser", mock.Anything, 1).Return([]models.Message{
		direct(9, 3, 1, "from carl", 5*time.Minute),
		direct(8, 1, 2, "to bea", 4*time.Minute),
	}, nil)
	f.users.On("GetByIDs", mock.Anything, []int{3, 2}).Return([]models.User{
		{ID: 2, Email: "b@example.com"},
	}, nil)
	f.groups.On("ListGroupsForUser", mock.Anything, 1).Return([]models.Group{
		{ID: 30, Name: "empty-new", CreatedAt: base.Add(time.Hour)},
		{ID: 20, Name: "quiet", CreatedAt: base},
		{ID: 10, Name: "busy", CreatedAt: base.Add(-time.Hour)},
		{ID: 5, Name: "empty-old", CreatedAt: base.Add(-2 * time.Hour)},
	}, nil)
	f.messages.On("LatestGroupMessage", mock.Anything, 10).Return(inGroup(7, 2, 10, "latest", 10*time.Minute), nil)
	f.messages.On("LatestGroupMessage", mock.Anything, 20).Return(inGroup(6, 3, 20, "older", time.Minute), nil)
	f.messages.On("LatestGroupMessage", mock.Anything, 30).Return(nil, repositories.ErrMessageNotFound)
	f.messages.On("LatestGroupMessage", mock.Anything, 5).Return(nil, repositories.ErrMessageNotFound)

	chats, err := f.agg.ListChats(context.Background(), 1)
	require.NoError(t, err)

	ids := make([]int, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ChatID)
	}
	assert.Equal(t, []int{3, 2, 10, 20, 30, 5}, ids)
	assert.Equal(t, "user 3", chats[0].Title)
	assert.Equal(t, "b@example.com", chats[1].Title)
	assert.True(t, chats[2].IsGroup)
	assert.Equal(t, "busy", chats[2].Title)
	assert.Empty(t, chats[4].LastMessage)
	assert.Nil(t, chats[4].Timestamp)
}

func TestListChatsEmpty(t *testing.T) {
	f := newFixture(t)
	f.messages.On("ListDirectForUser", mock.Anything, 4).Return([]models.Message{}, nil)
	f.groups.On("ListGroupsForUser", mock.Anything, 4).Return([]models.Group{}, nil)

	chats, err := f.agg.ListChats(context.Background(), 4)
	require.NoError(t, err)

	assert.NotNil(t, chats)
	assert.Empty(t, chats)
	f.users.AssertNotCalled(t, "GetByIDs", mock.Anything, mock.Anything)
}

func TestListChatsPropagatesStoreErrors(t *testing.T) {
	f := newFixture(t)
	f.messages.On("ListDirectForUser", mock.Anything, 1).Return([]models.Message{}, nil)
	f.groups.On("ListGroupsForUser", mock.Anything, 1).Return([]models.Group{{ID: 10}}, nil)
	f.messages.On("LatestGroupMessage", mock.Anything, 10).Return(nil, errors.New("timeout"))

	_, err := f.agg.ListChats(context.Background(), 1)

	assert.ErrorContains(t, err, "latest message of group 10")
}

func TestMergeByRecency(t *testing.T) {
	ts := func(d time.Duration) *time.Time {
		v := base.Add(d)
		return &v
	}
	chats := []models.ChatSummary{
		{ChatID: 2, Timestamp: ts(time.Minute)},
		{ChatID: 3, Timestamp: ts(3 * time.Minute)},
		{ChatID: 10, IsGroup: true, Timestamp: ts(2 * time.Minute)},
		{ChatID: 11, IsGroup: true},
		{ChatID: 12, IsGroup: true, Timestamp: ts(4 * time.Minute)},
	}

	merged := MergeByRecency(chats)

	ids := make([]int, 0, len(merged))
	for _, c := range merged {
		ids = append(ids, c.ChatID)
	}
	assert.Equal(t, []int{12, 3, 10, 2, 11}, ids)
	assert.Equal(t, 2, chats[0].ChatID, "input must not be reordered")
}
