// Package history builds a user's conversation list from stored messages.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jishnu70/Chat-app-backend/internal/models"
	"github.com/jishnu70/Chat-app-backend/internal/repositories"
)

// latestLookups bounds concurrent last-message queries for one request.
const latestLookups = 8

// Aggregator lists the direct and group conversations of a user.
type Aggregator struct {
	users    repositories.UserRepository
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	logger   *zap.Logger
}

func NewAggregator(users repositories.UserRepository, groups repositories.GroupRepository, messages repositories.MessageRepository, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{users: users, groups: groups, messages: messages, logger: logger}
}

// ListChats returns one summary per direct counterpart followed by one per
// group membership. Direct entries are newest first. Group entries are ordered
// by last message, and groups without messages come last, newest group first.
func (a *Aggregator) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	direct, err := a.directChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	groups, err := a.groupChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("chat list built", zap.Int("user_id", userID), zap.Int("direct", len(direct)), zap.Int("groups", len(groups)))
	return append(direct, groups...), nil
}

func (a *Aggregator) directChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	msgs, err := a.messages.ListDirectForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	sort.SliceStable(msgs, func(i, j int) bool { return newer(msgs[i], msgs[j]) })

	latest := lo.UniqBy(msgs, func(m models.Message) int { return m.Counterpart(userID) })
	if len(latest) == 0 {
		return []models.ChatSummary{}, nil
	}

	counterparts := lo.Map(latest, func(m models.Message, _ int) int { return m.Counterpart(userID) })
	users, err := a.users.GetByIDs(ctx, counterparts)
	if err != nil {
		return nil, fmt.Errorf("load counterparts: %w", err)
	}
	byID := lo.KeyBy(users, func(u models.User) int { return u.ID })

	return lo.Map(latest, func(m models.Message, _ int) models.ChatSummary {
		other := m.Counterpart(userID)
		ts := m.CreatedAt
		return models.ChatSummary{
			ChatID:      other,
			Title:       title(byID, other),
			LastMessage: m.Content,
			Timestamp:   &ts,
		}
	}), nil
}

type groupLatest struct {
	group models.Group
	msg   *models.Message
}

func (a *Aggregator) groupChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	groups, err := a.groups.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	rows := make([]groupLatest, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(latestLookups)
	for i, group := range groups {
		rows[i].group = group
		g.Go(func() error {
			msg, err := a.messages.LatestGroupMessage(gctx, group.ID)
			if errors.Is(err, repositories.ErrMessageNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("latest message of group %d: %w", group.ID, err)
			}
			rows[i].msg = &msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		x, y := rows[i], rows[j]
		switch {
		case x.msg != nil && y.msg != nil:
			return newer(*x.msg, *y.msg)
		case x.msg != nil:
			return true
		case y.msg != nil:
			return false
		}
		if !x.group.CreatedAt.Equal(y.group.CreatedAt) {
			return x.group.CreatedAt.After(y.group.CreatedAt)
		}
		return x.group.ID > y.group.ID
	})

	return lo.Map(rows, func(row groupLatest, _ int) models.ChatSummary {
		summary := models.ChatSummary{ChatID: row.group.ID, Title: row.group.Name, IsGroup: true}
		if row.msg != nil {
			ts := row.msg.CreatedAt
			summary.LastMessage = row.msg.Content
			summary.Timestamp = &ts
		}
		return summary
	}), nil
}

// MergeByRecency orders chats newest first across kinds. Chats without a
// timestamp keep their relative order at the end.
func MergeByRecency(chats []models.ChatSummary) []models.ChatSummary {
	out := append([]models.ChatSummary(nil), chats...)
	sort.SliceStable(out, func(i, j int) bool {
		return after(out[i].Timestamp, out[j].Timestamp)
	})
	return out
}

func after(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a != nil && b == nil
	}
	return a.After(*b)
}

func newer(a, b models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func title(users map[int]models.User, userID int) string {
	if u, ok := users[userID]; ok && u.Title() != "" {
		return u.Title()
	}
	return fmt.Sprintf("user %d", userID)
}
