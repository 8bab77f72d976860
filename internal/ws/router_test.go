package ws

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/jishnu70/Chat-app-backend/internal/models"
	"github.com/jishnu70/Chat-app-backend/internal/observability"
)

// sequence stands in for the message store: ids and timestamps grow in
// commit order.
type sequence struct {
	mu   sync.Mutex
	next int
}

func (s *sequence) persist(groupID, senderID int, content string) func(context.Context) (models.Message, error) {
	return func(context.Context) (models.Message, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.next++
		gid := groupID
		return models.Message{ID: s.next, SenderID: senderID, GroupID: &gid, Content: content, CreatedAt: time.Now()}, nil
	}
}

func newTestRouter(reg *Registry, timeout time.Duration) *Router {
	return NewRouter(reg, RouterConfig{SendTimeout: timeout, Concurrency: 4}, zap.NewNop(), nil, nil)
}

func TestRouterPublishDeliversToEveryMember(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := NewRegistry()
	transports := make([]*fakeTransport, 0, 3)
	for _, userID := range []int{1, 2, 3} {
		peer, tr := newFakePeer(userID)
		reg.Register(5, peer)
		transports = append(transports, tr)
	}
	router := newTestRouter(reg, time.Second)
	seq := &sequence{}

	msg, report, err := router.Publish(context.Background(), 5, seq.persist(5, 1, "hello"))
	require.NoError(t, err)

	assert.Equal(t, DeliveryReport{Attempted: 3, Delivered: 3}, report)
	for _, tr := range transports {
		got := tr.messages(t)
		require.Len(t, got, 1)
		assert.Equal(t, msg.ID, got[0].ID)
		assert.Equal(t, "hello", got[0].Content)
		require.NotNil(t, got[0].GroupID)
		assert.Equal(t, 5, *got[0].GroupID)
	}
	assert.Equal(t, 0, router.pendingLocks())
}

func TestRouterPersistFailureDeliversNothing(t *testing.T) {
	reg := NewRegistry()
	peer, tr := newFakePeer(1)
	reg.Register(5, peer)
	router := newTestRouter(reg, time.Second)

	_, report, err := router.Publish(context.Background(), 5, func(context.Context) (models.Message, error) {
		return models.Message{}, errors.New("db down")
	})

	assert.EqualError(t, err, "db down")
	assert.Zero(t, report.Attempted)
	assert.Empty(t, tr.messages(t))
}

func TestRouterRejectsMessageForAnotherGroup(t *testing.T) {
	router := newTestRouter(NewRegistry(), time.Second)
	seq := &sequence{}

	_, _, err := router.Publish(context.Background(), 5, seq.persist(6, 1, "misrouted"))

	assert.ErrorIs(t, err, errNotGroupMessage)
}

func TestRouterPreservesCommitOrderPerGroup(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := NewRegistry()
	a, trA := newFakePeer(1)
	b, trB := newFakePeer(2)
	reg.Register(8, a)
	reg.Register(8, b)
	router := newTestRouter(reg, time.Second)
	seq := &sequence{}

	const sends = 50
	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func(sender int) {
			defer wg.Done()
			_, _, err := router.Publish(context.Background(), 8, seq.persist(8, sender, "m"))
			assert.NoError(t, err)
		}(i%2 + 1)
	}
	wg.Wait()

	for _, tr := range []*fakeTransport{trA, trB} {
		got := tr.messages(t)
		require.Len(t, got, sends)
		for i := 1; i < len(got); i++ {
			assert.Less(t, got[i-1].ID, got[i].ID, "frames out of commit order")
		}
	}
}

func TestRouterIsolatesFailedRecipient(t *testing.T) {
	reg := NewRegistry()
	ok1, tr1 := newFakePeer(1)
	broken, trBroken := newFakePeer(2)
	ok3, tr3 := newFakePeer(3)
	trBroken.failWith = errors.New("connection reset")
	reg.Register(5, ok1)
	reg.Register(5, broken)
	reg.Register(5, ok3)

	promReg := prometheus.NewRegistry()
	router := NewRouter(reg, RouterConfig{SendTimeout: time.Second, Concurrency: 2}, zap.NewNop(), observability.NewMetrics(promReg), nil)
	seq := &sequence{}

	_, report, err := router.Publish(context.Background(), 5, seq.persist(5, 1, "hi"))
	require.NoError(t, err)

	assert.Equal(t, DeliveryReport{Attempted: 3, Delivered: 2, Failed: 1}, report)
	assert.Len(t, tr1.messages(t), 1)
	assert.Len(t, tr3.messages(t), 1)
	assert.True(t, trBroken.isClosed())

	expected := `
# HELP chat_fanout_deliveries_total Per-recipient group deliveries, by result.
# TYPE chat_fanout_deliveries_total counter
chat_fanout_deliveries_total{result="delivered"} 2
chat_fanout_deliveries_total{result="failed"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(promReg, strings.NewReader(expected), "chat_fanout_deliveries_total"))
}

func TestRouterSlowRecipientDoesNotStallOthers(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := NewRegistry()
	slow, trSlow := newFakePeer(1)
	fast, trFast := newFakePeer(2)
	trSlow.blocked = true
	reg.Register(5, slow)
	reg.Register(5, fast)
	router := newTestRouter(reg, 50*time.Millisecond)
	seq := &sequence{}

	start := time.Now()
	_, report, err := router.Publish(context.Background(), 5, seq.persist(5, 2, "hi"))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, trFast.messages(t), 1)
	assert.True(t, trSlow.isClosed())
}

func TestRouterGroupsDoNotBlockEachOther(t *testing.T) {
	router := newTestRouter(NewRegistry(), time.Second)
	seq := &sequence{}
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, _, err := router.Publish(context.Background(), 1, func(ctx context.Context) (models.Message, error) {
			close(started)
			<-release
			return seq.persist(1, 1, "slow")(ctx)
		})
		done <- err
	}()
	<-started

	_, _, err := router.Publish(context.Background(), 2, seq.persist(2, 1, "fast"))
	assert.NoError(t, err)

	close(release)
	assert.NoError(t, <-done)
}

func TestRouterWaitingPublishHonorsContext(t *testing.T) {
	router := newTestRouter(NewRegistry(), time.Second)
	seq := &sequence{}
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, _, err := router.Publish(context.Background(), 1, func(ctx context.Context) (models.Message, error) {
			close(started)
			<-release
			return seq.persist(1, 1, "first")(ctx)
		})
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := router.Publish(ctx, 1, seq.persist(1, 2, "second"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 0, router.pendingLocks())
}
