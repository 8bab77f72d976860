package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jishnu70/Chat-app-backend/internal/models"
	"github.com/jishnu70/Chat-app-backend/internal/observability"
)

var errNotGroupMessage = errors.New("message has no group")

// RouterConfig bounds fan-out.
type RouterConfig struct {
	SendTimeout time.Duration
	Concurrency int
}

// DeliveryReport summarizes one fan-out.
type DeliveryReport struct {
	Attempted int
	Delivered int
	Failed    int
}

// Router persists and fans out group messages. Publishes to the same group
// are serialized so every member observes them in commit order. Different
// groups proceed independently.
type Router struct {
	registry *Registry
	cfg      RouterConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
	events   *observability.Events

	mu    sync.Mutex
	locks map[int]*groupLock
}

type groupLock struct {
	sem  chan struct{}
	refs int
}

func NewRouter(registry *Registry, cfg RouterConfig, logger *zap.Logger, metrics *observability.Metrics, events *observability.Events) *Router {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		events:   events,
		locks:    make(map[int]*groupLock),
	}
}

// Publish runs persist under the group's lock and, if it succeeds, delivers
// the stored message to every member connected at that moment. Nothing is
// delivered when persist fails.
func (r *Router) Publish(ctx context.Context, groupID int, persist func(context.Context) (models.Message, error)) (models.Message, DeliveryReport, error) {
	unlock, err := r.lockGroup(ctx, groupID)
	if err != nil {
		return models.Message{}, DeliveryReport{}, err
	}
	defer unlock()

	msg, err := persist(ctx)
	if err != nil {
		return models.Message{}, DeliveryReport{}, err
	}
	if msg.GroupID == nil || *msg.GroupID != groupID {
		return msg, DeliveryReport{}, fmt.Errorf("publish to group %d: %w", groupID, errNotGroupMessage)
	}
	return msg, r.broadcast(ctx, msg), nil
}

// lockGroup waits for exclusive use of groupID. Lock entries are reference
// counted and dropped once nobody holds or waits for them.
func (r *Router) lockGroup(ctx context.Context, groupID int) (func(), error) {
	r.mu.Lock()
	gl, ok := r.locks[groupID]
	if !ok {
		gl = &groupLock{sem: make(chan struct{}, 1)}
		r.locks[groupID] = gl
	}
	gl.refs++
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		gl.refs--
		if gl.refs == 0 {
			delete(r.locks, groupID)
		}
		r.mu.Unlock()
	}

	select {
	case gl.sem <- struct{}{}:
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
	return func() {
		<-gl.sem
		release()
	}, nil
}

func (r *Router) pendingLocks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// broadcast encodes msg once and sends it to a snapshot of the group. Each
// send has its own timeout. A failed recipient is logged, counted and closed
// so its session ends; the rest are unaffected and nothing is retried.
func (r *Router) broadcast(ctx context.Context, msg models.Message) DeliveryReport {
	start := time.Now()
	groupID := *msg.GroupID
	members := r.registry.Snapshot(groupID)
	report := DeliveryReport{Attempted: len(members)}
	if len(members) == 0 {
		return report
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("encode group frame", zap.Int("group_id", groupID), zap.Int("message_id", msg.ID), zap.Error(err))
		report.Failed = len(members)
		return report
	}

	var delivered, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)
	for _, member := range members {
		g.Go(func() error {
			if err := member.Peer.Send(payload, r.cfg.SendTimeout); err != nil {
				failed.Add(1)
				r.deliveryFailed(ctx, groupID, msg.ID, member, err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report.Delivered = int(delivered.Load())
	report.Failed = int(failed.Load())
	r.metrics.AddFanoutResults(report.Delivered, report.Failed)
	r.metrics.ObserveFanout(time.Since(start))
	r.logger.Debug("group fan-out",
		zap.Int("group_id", groupID),
		zap.Int("message_id", msg.ID),
		zap.Int("attempted", report.Attempted),
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (r *Router) deliveryFailed(ctx context.Context, groupID, messageID int, member Member, err error) {
	r.logger.Warn("group delivery failed",
		zap.Int("group_id", groupID),
		zap.Int("message_id", messageID),
		zap.Int("user_id", member.UserID),
		zap.String("conn_id", member.Peer.Info.ConnID),
		zap.Error(err),
	)
	publishLifecycle(ctx, r.events, r.metrics, member.Peer.Info, eventDeliveryFailed, err.Error())
	_ = member.Peer.CloseWith(websocket.CloseTryAgainLater, "delivery failed")
}
