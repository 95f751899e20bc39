package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tidepool/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStrategy captures every notification it is asked to send.
type recordingStrategy struct {
	strategyType StrategyType
	err          error

	mu   sync.Mutex
	sent []*models.Notification
}

func (s *recordingStrategy) Type() StrategyType { return s.strategyType }

func (s *recordingStrategy) Send(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	s.sent = append(s.sent, n)
	s.mu.Unlock()
	return s.err
}

func (s *recordingStrategy) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestDispatcher_RoutesByCategory(t *testing.T) {
	t.Parallel()

	site := &recordingStrategy{strategyType: StrategySite}
	email := &recordingStrategy{strategyType: StrategyEmail}

	d := NewDispatcher(nil)
	require.NoError(t, d.Register(site))
	require.NoError(t, d.Register(email))
	d.Route("system", StrategyEmail)

	require.NoError(t, d.Dispatch(context.Background(), &models.Notification{Type: "system", ReceiverID: 1}))
	assert.Equal(t, 1, email.count())
	assert.Zero(t, site.count())
}

func TestDispatcher_UnroutedCategoryFallsBackToSite(t *testing.T) {
	t.Parallel()

	site := &recordingStrategy{strategyType: StrategySite}
	d := NewDispatcher(nil)
	require.NoError(t, d.Register(site))

	require.NoError(t, d.Dispatch(context.Background(), &models.Notification{Type: "like", ReceiverID: 1}))
	assert.Equal(t, 1, site.count())
}

func TestDispatcher_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil)
	require.NoError(t, d.Register(&recordingStrategy{strategyType: StrategySite}))
	assert.Error(t, d.Register(&recordingStrategy{strategyType: StrategySite}))
}

func TestDispatcher_RoutedButUnregistered(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil)
	require.NoError(t, d.Register(&recordingStrategy{strategyType: StrategySite}))
	d.Route("reply", StrategyPush)

	err := d.Dispatch(context.Background(), &models.Notification{Type: "reply", ReceiverID: 1})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeInternal))
}

func TestDispatcher_SendErrorSurfaces(t *testing.T) {
	t.Parallel()

	broken := &recordingStrategy{strategyType: StrategySite, err: errors.New("smtp down")}
	d := NewDispatcher(nil)
	require.NoError(t, d.Register(broken))

	err := d.Dispatch(context.Background(), &models.Notification{Type: "like", ReceiverID: 1})
	assert.Error(t, err)
}

func TestDispatcher_LoadRouting(t *testing.T) {
	t.Parallel()

	push := &recordingStrategy{strategyType: StrategyPush}
	db := &recordingStrategy{strategyType: StrategyDatabase}
	d := NewDispatcher(nil)
	require.NoError(t, d.Register(push))
	require.NoError(t, d.Register(db))

	d.LoadRouting(map[string]StrategyType{
		"reply":  StrategyPush,
		"follow": StrategyDatabase,
	})

	require.NoError(t, d.Dispatch(context.Background(), &models.Notification{Type: "reply", ReceiverID: 1}))
	require.NoError(t, d.Dispatch(context.Background(), &models.Notification{Type: "follow", ReceiverID: 1}))
	assert.Equal(t, 1, push.count())
	assert.Equal(t, 1, db.count())
}
