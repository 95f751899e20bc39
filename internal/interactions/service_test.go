package interactions

import (
	"context"
	"sync"
	"testing"
	"time"

	"tidepool/internal/comments"
	"tidepool/internal/counters"
	"tidepool/internal/events"
	"tidepool/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLikeRepo struct {
	mu     sync.Mutex
	states map[[2]uint]bool

	activeTargets []uint
}

func newStubLikeRepo() *stubLikeRepo {
	return &stubLikeRepo{states: map[[2]uint]bool{}}
}

func (s *stubLikeRepo) SetActive(_ context.Context, actorID uint, _ string, targetID uint, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := [2]uint{actorID, targetID}
	changed := s.states[k] != active
	s.states[k] = active
	return changed, nil
}

func (s *stubLikeRepo) Get(context.Context, uint, string, uint) (*models.Like, error) {
	return nil, models.NewNotFoundError("Like", 0)
}

func (s *stubLikeRepo) CountActive(_ context.Context, _ string, targetID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, active := range s.states {
		if active && k[1] == targetID {
			n++
		}
	}
	return n, nil
}

func (s *stubLikeRepo) ActiveTargetIDs(context.Context, string) ([]uint, error) {
	return s.activeTargets, nil
}

func (s *stubLikeRepo) ActiveActorIDs(_ context.Context, _ string, targetID uint) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint
	for k, active := range s.states {
		if active && k[1] == targetID {
			ids = append(ids, k[0])
		}
	}
	return ids, nil
}

type stubFollowRepo struct {
	mu     sync.Mutex
	states map[[2]uint]bool
}

func newStubFollowRepo() *stubFollowRepo {
	return &stubFollowRepo{states: map[[2]uint]bool{}}
}

func (s *stubFollowRepo) SetActive(_ context.Context, followerID, followeeID uint, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := [2]uint{followerID, followeeID}
	changed := s.states[k] != active
	s.states[k] = active
	return changed, nil
}

func (s *stubFollowRepo) CountFollowers(_ context.Context, followeeID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, active := range s.states {
		if active && k[1] == followeeID {
			n++
		}
	}
	return n, nil
}

func (s *stubFollowRepo) IsFollowing(_ context.Context, followerID, followeeID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[[2]uint{followerID, followeeID}], nil
}

// memoryCommentRepo backs the comment service for write-path tests.
type memoryCommentRepo struct {
	mu       sync.Mutex
	nextID   uint
	comments map[uint]*models.Comment
}

func newMemoryCommentRepo() *memoryCommentRepo {
	return &memoryCommentRepo{nextID: 1, comments: map[uint]*models.Comment{}}
}

func (m *memoryCommentRepo) Create(_ context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextID
	m.nextID++
	stored := *c
	m.comments[c.ID] = &stored
	return nil
}

func (m *memoryCommentRepo) GetByID(_ context.Context, id uint) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, models.NewNotFoundError("Comment", id)
	}
	return c, nil
}

func (m *memoryCommentRepo) ListRoots(context.Context, string, uint, int, int) ([]*models.Comment, error) {
	return nil, nil
}

func (m *memoryCommentRepo) ListRepliesByParents(context.Context, []uint, int) (map[uint][]*models.Comment, error) {
	return nil, nil
}

func (m *memoryCommentRepo) ListReplies(context.Context, uint, int, int) ([]*models.Comment, error) {
	return nil, nil
}

func (m *memoryCommentRepo) CountReplies(context.Context, []uint) (map[uint]int64, error) {
	return nil, nil
}

func (m *memoryCommentRepo) CountForTarget(_ context.Context, targetType string, targetID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.comments {
		if c.TargetType == targetType && c.TargetID == targetID {
			n++
		}
	}
	return n, nil
}

func (m *memoryCommentRepo) IDsForTarget(_ context.Context, targetType string, targetID uint) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint
	for _, c := range m.comments {
		if c.TargetType == targetType && c.TargetID == targetID {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

func (m *memoryCommentRepo) TargetIDs(_ context.Context, targetType string) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[uint]bool{}
	var ids []uint
	for _, c := range m.comments {
		if c.TargetType == targetType && !seen[c.TargetID] {
			seen[c.TargetID] = true
			ids = append(ids, c.TargetID)
		}
	}
	return ids, nil
}

func (m *memoryCommentRepo) DeleteCascade(_ context.Context, id uint) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[id]; !ok {
		return nil, models.NewNotFoundError("Comment", id)
	}
	removed := []uint{id}
	delete(m.comments, id)
	for cid, c := range m.comments {
		if c.ParentID != nil && *c.ParentID == id {
			delete(m.comments, cid)
			removed = append(removed, cid)
		}
	}
	return removed, nil
}

// busRecorder drains a started bus into a slice for assertions.
type busRecorder struct {
	mu     sync.Mutex
	events []events.InteractionEvent
}

func (r *busRecorder) record(_ context.Context, e events.InteractionEvent) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *busRecorder) all() []events.InteractionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.InteractionEvent, len(r.events))
	copy(out, r.events)
	return out
}

func newRecordedBus(t *testing.T) (*events.Bus, *busRecorder) {
	t.Helper()
	recorder := &busRecorder{}
	registry := events.NewRegistry()
	registry.Register(events.HandlerFunc{HandlerName: "recorder", Fn: recorder.record},
		events.EventLike, events.EventUnlike,
		events.EventComment, events.EventReply,
		events.EventFollow, events.EventUnfollow)
	bus := events.NewBus(registry, events.Options{LaneCapacity: 16})
	require.NoError(t, bus.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = bus.Stop(ctx)
	})
	return bus, recorder
}

func newTestService(t *testing.T) (*Service, *stubLikeRepo, *stubFollowRepo, *busRecorder) {
	t.Helper()
	likes := newStubLikeRepo()
	follows := newStubFollowRepo()
	commentSvc := comments.NewService(newMemoryCommentRepo(), nil, comments.NewCache(nil), nil)
	bus, recorder := newRecordedBus(t)
	svc := NewService(likes, follows, commentSvc, newTestCounters(t), bus, nil)
	return svc, likes, follows, recorder
}

func waitForEvents(t *testing.T, recorder *busRecorder, n int) []events.InteractionEvent {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(recorder.all()) >= n
	}, 2*time.Second, 10*time.Millisecond)
	return recorder.all()
}

func TestService_ToggleLike(t *testing.T) {
	t.Parallel()

	svc, likes, _, recorder := newTestService(t)
	ctx := context.Background()

	res, err := svc.ToggleLike(ctx, 1, models.TargetPost, 42)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.True(t, res.Changed)
	assert.Equal(t, int64(1), res.Count)

	likes.mu.Lock()
	assert.True(t, likes.states[[2]uint{1, 42}])
	likes.mu.Unlock()

	got := waitForEvents(t, recorder, 1)
	assert.Equal(t, events.EventLike, got[0].Type)
	assert.Equal(t, uint(1), got[0].ActorID)
	assert.Equal(t, uint(42), got[0].TargetID)
}

func TestService_ToggleLikeTwiceUnlikes(t *testing.T) {
	t.Parallel()

	svc, _, _, recorder := newTestService(t)
	ctx := context.Background()

	_, err := svc.ToggleLike(ctx, 1, models.TargetPost, 42)
	require.NoError(t, err)
	res, err := svc.ToggleLike(ctx, 1, models.TargetPost, 42)
	require.NoError(t, err)
	assert.False(t, res.Active)
	assert.Equal(t, int64(0), res.Count)

	got := waitForEvents(t, recorder, 2)
	assert.Equal(t, events.EventLike, got[0].Type)
	assert.Equal(t, events.EventUnlike, got[1].Type)
}

func TestService_ToggleFollow(t *testing.T) {
	t.Parallel()

	svc, _, follows, recorder := newTestService(t)
	ctx := context.Background()

	res, err := svc.ToggleFollow(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, int64(1), res.Count)

	following, err := follows.IsFollowing(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, following)

	got := waitForEvents(t, recorder, 1)
	assert.Equal(t, events.EventFollow, got[0].Type)
	assert.Equal(t, models.TargetUser, got[0].TargetType)
}

func TestService_SelfFollowRejected(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	_, err := svc.ToggleFollow(context.Background(), 5, 5)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestService_CreateCommentPublishesEvent(t *testing.T) {
	t.Parallel()

	svc, _, _, recorder := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateComment(ctx, comments.CreateCommentInput{
		TargetType: models.TargetPost,
		TargetID:   42,
		UserID:     1,
		Content:    "first",
	})
	require.NoError(t, err)

	got := waitForEvents(t, recorder, 1)
	assert.Equal(t, events.EventComment, got[0].Type)
	assert.Equal(t, "first", got[0].Payload["content"])
	assert.NotEmpty(t, got[0].Payload["comment_id"])

	// A reply carries parent and addressee payload.
	replyTo := uint(9)
	_, err = svc.CreateComment(ctx, comments.CreateCommentInput{
		TargetType:    models.TargetPost,
		TargetID:      42,
		UserID:        2,
		Content:       "reply",
		ParentID:      &created.ID,
		ReplyToUserID: &replyTo,
	})
	require.NoError(t, err)

	got = waitForEvents(t, recorder, 2)
	assert.Equal(t, events.EventReply, got[1].Type)
	assert.Equal(t, "9", got[1].Payload["reply_to_user_id"])
	assert.NotEmpty(t, got[1].Payload["parent_id"])
}

func TestService_ToggleLikeRejectsUnknownTargetType(t *testing.T) {
	t.Parallel()

	svc, likes, _, recorder := newTestService(t)
	ctx := context.Background()

	_, err := svc.ToggleLike(ctx, 1, "video", 42)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeValidation))

	// Nothing was written or published.
	likes.mu.Lock()
	assert.Empty(t, likes.states)
	likes.mu.Unlock()
	assert.Empty(t, recorder.all())
}

func TestService_DeleteCommentRealignsCounter(t *testing.T) {
	t.Parallel()

	cache := newTestCounters(t)
	commentSvc := comments.NewService(newMemoryCommentRepo(), nil, comments.NewCache(nil), nil)
	svc := NewService(newStubLikeRepo(), newStubFollowRepo(), commentSvc, cache, nil, nil)
	ctx := context.Background()

	root, err := svc.CreateComment(ctx, comments.CreateCommentInput{
		TargetType: models.TargetPost, TargetID: 7, UserID: 1, Content: "root",
	})
	require.NoError(t, err)
	reply, err := svc.CreateComment(ctx, comments.CreateCommentInput{
		TargetType: models.TargetPost, TargetID: 7, UserID: 2, Content: "reply", ParentID: &root.ID,
	})
	require.NoError(t, err)

	// Count the comments the way the bus handler does, one member per
	// comment ID.
	key := counters.Key{TargetType: models.TargetPost, TargetID: 7, Metric: counters.MetricComments}
	for _, id := range []uint{root.ID, reply.ID} {
		_, err := cache.Activate(ctx, id, key)
		require.NoError(t, err)
	}
	count, err := cache.GetCount(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	// Cascade-deleting the root drops both members from the counter.
	removed, err := svc.DeleteComment(ctx, root.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	count, err = cache.GetCount(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestService_NilBusStillApplies(t *testing.T) {
	t.Parallel()

	commentSvc := comments.NewService(newMemoryCommentRepo(), nil, comments.NewCache(nil), nil)
	svc := NewService(newStubLikeRepo(), newStubFollowRepo(), commentSvc, newTestCounters(t), nil, nil)

	res, err := svc.ToggleLike(context.Background(), 1, models.TargetPost, 1)
	require.NoError(t, err)
	assert.True(t, res.Active)
}
