package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"net/http/httptest"
	"testing"

	"tidepool/internal/comments"
	"tidepool/internal/config"
	"tidepool/internal/counters"
	"tidepool/internal/interactions"
	"tidepool/internal/models"
	"tidepool/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newInteractionTestServer wires the interaction stack over sqlite and
// miniredis, with routes that authenticate as the given user.
func newInteractionTestServer(t *testing.T, userID uint) (*Server, *fiber.App) {
	t.Helper()
	db := setupTestDB(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := &Server{
		config:      &config.Config{JWTSecret: "test-secret-key", Port: "0"},
		db:          db,
		redis:       rdb,
		userRepo:    repository.NewUserRepository(db),
		postRepo:    repository.NewPostRepository(db),
		commentRepo: repository.NewCommentRepository(db),
		likeRepo:    repository.NewLikeRepository(db),
		followRepo:  repository.NewFollowRepository(db),
	}
	s.counterCache = counters.NewCache(rdb)
	s.commentCache = comments.NewCache(rdb)
	s.commentAssembler = comments.NewAssembler(s.commentRepo, s.commentCache, 2)
	s.commentService = comments.NewService(s.commentRepo, s.userRepo, s.commentCache, nil)
	s.interaction = interactions.NewService(s.likeRepo, s.followRepo, s.commentService, s.counterCache, nil, nil)

	app := fiber.New()
	authed := func(c *fiber.Ctx) error {
		c.Locals("userID", userID)
		return c.Next()
	}
	app.Post("/api/likes/:targetType/:targetId/toggle", authed, s.ToggleLike)
	app.Get("/api/likes/:targetType/:targetId/me", authed, s.GetMyLike)
	app.Post("/api/users/:id/follow/toggle", authed, s.ToggleFollow)
	app.Get("/api/counts/:targetType/:targetId", s.GetCounts)
	app.Post("/api/comments", authed, s.CreateComment)
	app.Get("/api/comments/:targetType/:targetId", s.GetRootComments)
	app.Delete("/api/comments/:id", authed, s.DeleteComment)
	return s, app
}

func doReq(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	raw := new(bytes.Buffer)
	_, _ = raw.ReadFrom(resp.Body)
	_ = resp.Body.Close()
	return resp, raw.Bytes()
}

func TestToggleLikeEndpoint(t *testing.T) {
	t.Parallel()

	_, app := newInteractionTestServer(t, 1)

	resp, body := doReq(t, app, http.MethodPost, "/api/likes/post/42/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result interactions.ToggleResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.True(t, result.Active)
	assert.Equal(t, int64(1), result.Count)

	// Toggling back down.
	resp, body = doReq(t, app, http.MethodPost, "/api/likes/post/42/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &result))
	assert.False(t, result.Active)
	assert.Equal(t, int64(0), result.Count)
}

func TestGetMyLikeEndpoint(t *testing.T) {
	t.Parallel()

	_, app := newInteractionTestServer(t, 1)

	resp, body := doReq(t, app, http.MethodGet, "/api/likes/post/42/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"active":false}`, string(body))

	resp, _ = doReq(t, app, http.MethodPost, "/api/likes/post/42/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doReq(t, app, http.MethodGet, "/api/likes/post/42/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"active":true}`, string(body))
}

func TestToggleFollowEndpoint_SelfFollowRejected(t *testing.T) {
	t.Parallel()

	_, app := newInteractionTestServer(t, 5)

	resp, _ := doReq(t, app, http.MethodPost, "/api/users/5/follow/toggle", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doReq(t, app, http.MethodPost, "/api/users/6/follow/toggle", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetCountsEndpoint(t *testing.T) {
	t.Parallel()

	_, app := newInteractionTestServer(t, 1)

	resp, _ := doReq(t, app, http.MethodPost, "/api/likes/post/42/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doReq(t, app, http.MethodGet, "/api/counts/post/42", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		TargetType string           `json:"target_type"`
		TargetID   uint             `json:"target_id"`
		Counts     map[string]int64 `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, int64(1), out.Counts["likes"])
	assert.Equal(t, int64(0), out.Counts["comments"])
	_, hasFollowers := out.Counts["followers"]
	assert.False(t, hasFollowers)

	// User targets also report followers.
	resp, body = doReq(t, app, http.MethodGet, "/api/counts/user/9", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	_, hasFollowers = out.Counts["followers"]
	assert.True(t, hasFollowers)
}

func TestCommentEndpoints(t *testing.T) {
	t.Parallel()

	s, app := newInteractionTestServer(t, 1)
	require.NoError(t, s.db.Create(&models.User{Username: "alice", Email: "a@example.com", PasswordHash: "x"}).Error)

	resp, body := doReq(t, app, http.MethodPost, "/api/comments", fiber.Map{
		"target_type": "post",
		"target_id":   42,
		"content":     "first comment",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created models.Comment
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "first comment", created.Content)

	resp, body = doReq(t, app, http.MethodGet, "/api/comments/post/42", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page comments.RootPage
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Comments, 1)
	assert.Equal(t, created.ID, page.Comments[0].ID)

	// Invalid target type is rejected.
	resp, _ = doReq(t, app, http.MethodPost, "/api/comments", fiber.Map{
		"target_type": "video",
		"target_id":   42,
		"content":     "nope",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteCommentEndpoint_Authorization(t *testing.T) {
	t.Parallel()

	s, app := newInteractionTestServer(t, 2)
	require.NoError(t, s.db.Create(&models.User{Username: "author", Email: "a@example.com", PasswordHash: "x"}).Error)
	require.NoError(t, s.db.Create(&models.User{Username: "other", Email: "o@example.com", PasswordHash: "x"}).Error)

	// Comment belongs to user 1; requests run as user 2.
	created, err := s.commentService.CreateComment(context.Background(), comments.CreateCommentInput{
		TargetType: models.TargetPost, TargetID: 1, UserID: 1, Content: "mine",
	})
	require.NoError(t, err)

	resp, _ := doReq(t, app, http.MethodDelete, "/api/comments/"+strconv.FormatUint(uint64(created.ID), 10), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
