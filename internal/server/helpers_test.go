package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tidepool/internal/models"
)

// setupTestDB creates an in-memory SQLite database migrated for all models.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Like{},
		&models.Follow{},
		&models.Notification{},
		&models.AuditEntry{},
	))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestHumanizeParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"targetId", "target ID"},
		{"commentId", "comment ID"},
		{"replyToUserId", "reply to user ID"},
		{"something", "something"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.param, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, humanizeParam(tt.param))
		})
	}
}

func TestParsePagination(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	var got Pagination
	app.Get("/items", func(c *fiber.Ctx) error {
		got = parsePagination(c, 20)
		return c.SendStatus(fiber.StatusOK)
	})

	tests := []struct {
		name   string
		url    string
		limit  int
		offset int
	}{
		{"defaults", "/items", 20, 0},
		{"explicit", "/items?limit=5&offset=10", 5, 10},
		{"zero limit falls back", "/items?limit=0", 20, 0},
		{"limit capped", "/items?limit=5000", maxPaginationLimit, 0},
		{"negative offset clamped", "/items?offset=-3", 20, 0},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.url, nil)
		resp, err := app.Test(req)
		require.NoError(t, err, tt.name)
		_ = resp.Body.Close()
		assert.Equal(t, tt.limit, got.Limit, tt.name)
		assert.Equal(t, tt.offset, got.Offset, tt.name)
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	s := &Server{}
	app := fiber.New()
	app.Get("/things/:id", func(c *fiber.Ctx) error {
		id, err := s.parseID(c, "id")
		if err != nil {
			return nil
		}
		return c.JSON(fiber.Map{"id": id})
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/things/7", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, bad := range []string{"/things/0", "/things/-1", "/things/abc"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, bad, nil))
		require.NoError(t, err, bad)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
	}
}

func TestIsAdmin(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	require.NoError(t, db.Create(&models.User{Username: "root", Email: "r@example.com", PasswordHash: "x", IsAdmin: true}).Error)
	require.NoError(t, db.Create(&models.User{Username: "plain", Email: "p@example.com", PasswordHash: "x"}).Error)

	s := &Server{db: db}
	app := fiber.New()
	var adminResult, plainResult bool
	app.Get("/check", func(c *fiber.Ctx) error {
		var err error
		adminResult, err = s.isAdmin(c, 1)
		require.NoError(t, err)
		plainResult, err = s.isAdmin(c, 2)
		require.NoError(t, err)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/check", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.True(t, adminResult)
	assert.False(t, plainResult)
}
