package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsalinas26/Guido/internal/models"
)

// testClock is a manually advanced clock for deterministic timestamps.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	store := NewStore()
	_, err := store.Create("call-1", "Jake", "Line 3")
	require.NoError(t, err)
	_, err = store.Create("call-1", "Jake", "Line 3")
	assert.ErrorIs(t, err, models.ErrSessionExists)
}

func TestGetOrCreateIdempotent(t *testing.T) {
	store := NewStore()
	first := store.GetOrCreate("call-1", "Jake", "Line 3")
	second := store.GetOrCreate("call-1", "Maria", "Line 7")

	assert.Equal(t, first.SessionID, second.SessionID)
	// Defaults of the first call win; the second call does not overwrite.
	assert.Equal(t, "Jake", second.WorkerName)
}

func TestMutatorsRequireSession(t *testing.T) {
	store := NewStore()

	_, err := store.Update("ghost", Update{})
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	assert.ErrorIs(t, store.AppendMessage("ghost", models.RoleUser, "hi"), models.ErrSessionNotFound)
	assert.ErrorIs(t, store.AppendAction("ghost", "t", nil, nil), models.ErrSessionNotFound)
	assert.ErrorIs(t, store.AppendDecision("ghost", 1, "d"), models.ErrSessionNotFound)
	assert.ErrorIs(t, store.MergeMeasurements("ghost", nil), models.ErrSessionNotFound)
}

func TestTimestampMonotonicAcrossMutations(t *testing.T) {
	clock := newTestClock()
	store := NewStoreWithClock(clock.Now)
	sess, err := store.Create("call-1", "Jake", "Line 3")
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	require.NoError(t, store.AppendMessage("call-1", models.RoleUser, "hello"))
	after := store.Get("call-1")
	assert.True(t, after.TimestampLastUpdate.After(sess.TimestampLastUpdate))

	// A clock stepping backwards must not move the timestamp backwards.
	clock.Advance(-10 * time.Second)
	require.NoError(t, store.AppendMessage("call-1", models.RoleUser, "again"))
	final := store.Get("call-1")
	assert.False(t, final.TimestampLastUpdate.Before(after.TimestampLastUpdate))
}

func TestUpdateMergesPartialFields(t *testing.T) {
	store := NewStore()
	_, err := store.Create("call-1", "Jake", "Line 3")
	require.NoError(t, err)

	doc := "SOP-QC-015"
	step := 2
	status := models.StatusAwaitingInput
	updated, err := store.Update("call-1", Update{
		CurrentDocumentID: &doc,
		CurrentStep:       &step,
		Status:            &status,
	})
	require.NoError(t, err)
	assert.Equal(t, "SOP-QC-015", updated.CurrentDocumentID)
	require.NotNil(t, updated.CurrentStep)
	assert.Equal(t, 2, *updated.CurrentStep)
	assert.Equal(t, models.StatusAwaitingInput, updated.Status)
	// Untouched fields stay put.
	assert.Equal(t, "Jake", updated.WorkerName)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	store := NewStore()
	_, err := store.Create("call-1", "Jake", "Line 3")
	require.NoError(t, err)
	require.NoError(t, store.MergeMeasurements("call-1", map[string]string{"defect_depth": "0.018"}))

	snap := store.Get("call-1")
	snap.Measurements["defect_depth"] = "tampered"
	snap.ConversationHistory = append(snap.ConversationHistory, models.Message{Content: "injected"})

	fresh := store.Get("call-1")
	assert.Equal(t, "0.018", fresh.Measurements["defect_depth"])
	assert.Empty(t, fresh.ConversationHistory)
}

func TestLockCallSerializes(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("call-1", "Jake", "Line 3")

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	release := store.LockCall("call-1")
	wg.Add(1)
	go func() {
		defer wg.Done()
		r := store.LockCall("call-1")
		defer r()
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	}()

	// Give the goroutine a chance to contend, then finish the first turn.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	release()
	wg.Wait()

	require.Equal(t, []int{1, 2}, order)
}

func TestReapIdle(t *testing.T) {
	clock := newTestClock()
	store := NewStoreWithClock(clock.Now)
	store.GetOrCreate("old", "Jake", "Line 3")

	clock.Advance(45 * time.Minute)
	store.GetOrCreate("fresh", "Jake", "Line 3")

	reaped := store.ReapIdle(30 * time.Minute)
	assert.Equal(t, []string{"old"}, reaped)
	assert.Nil(t, store.Get("old"))
	assert.NotNil(t, store.Get("fresh"))
}

func TestDeleteAndList(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("a", "Jake", "Line 3")
	store.GetOrCreate("b", "Maria", "Line 7")
	assert.Equal(t, 2, store.Count())
	assert.Len(t, store.ListAll(), 2)

	store.Delete("a")
	store.Delete("a") // no-op
	assert.Equal(t, 1, store.Count())
	assert.Nil(t, store.Get("a"))
}
