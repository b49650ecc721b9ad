package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTaskLifecycle(t *testing.T) {
	s := openTestStore(t)

	rec, err := s.InsertTask(42, `{"kind":"checkout"}`)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), rec.TaskID)
	assert.Equal(t, TaskPending, rec.Status)
	assert.Nil(t, rec.StartedAt)

	require.NoError(t, s.UpdateTaskStatus(42, TaskRunning, ""))
	got, err := s.GetTask(42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, TaskRunning, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, s.UpdateTaskStatus(42, TaskFailed, "boom"))
	got, err = s.GetTask(42)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestTaskErrorMessageColumn(t *testing.T) {
	s := openTestStore(t)

	_, err := s.InsertTask(1, "")
	require.NoError(t, err)
	require.NoError(t, s.UpdateTaskStatus(1, TaskFailed, "timed out"))

	var msg string
	err = s.db.QueryRow(`SELECT error_message FROM tasks WHERE task_id = 1`).Scan(&msg)
	require.NoError(t, err)
	assert.Equal(t, "timed out", msg)
}

func TestGetTaskNotFound(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetTask(999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateUnknownTaskFails(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.UpdateTaskStatus(7, TaskRunning, ""))
}

func TestListTasksFilteredByStatus(t *testing.T) {
	s := openTestStore(t)

	for id := uint64(1); id <= 4; id++ {
		_, err := s.InsertTask(id, "")
		require.NoError(t, err)
	}
	require.NoError(t, s.UpdateTaskStatus(2, TaskCompleted, ""))
	require.NoError(t, s.UpdateTaskStatus(3, TaskCompleted, ""))

	all, err := s.ListTasks(nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	status := TaskCompleted
	completed, err := s.ListTasks(&status)
	require.NoError(t, err)
	require.Len(t, completed, 2)
	assert.Equal(t, uint64(2), completed[0].TaskID)
	assert.Equal(t, uint64(3), completed[1].TaskID)
}

func TestDeleteTaskIdempotent(t *testing.T) {
	s := openTestStore(t)

	_, err := s.InsertTask(1, "")
	require.NoError(t, err)
	require.NoError(t, s.DeleteTask(1))
	require.NoError(t, s.DeleteTask(1))

	got, err := s.GetTask(1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDuplicateTaskIDRejected(t *testing.T) {
	s := openTestStore(t)

	_, err := s.InsertTask(5, "")
	require.NoError(t, err)
	_, err = s.InsertTask(5, "")
	assert.Error(t, err)
}

func TestOrderLifecycle(t *testing.T) {
	s := openTestStore(t)

	rec := &OrderRecord{
		OrderID:   "ord-1",
		ProductID: "prod-1",
		AccountID: "acct-1",
		Status:    "placed",
		Price:     19.99,
		Quantity:  2,
	}
	require.NoError(t, s.InsertOrder(rec))

	got, err := s.GetOrder("ord-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 19.99, got.Price)
	assert.Equal(t, 2, got.Quantity)

	require.NoError(t, s.UpdateOrderStatus("ord-1", "shipped"))
	got, err = s.GetOrder("ord-1")
	require.NoError(t, err)
	assert.Equal(t, "shipped", got.Status)

	missing, err := s.GetOrder("ord-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListOrdersByAccount(t *testing.T) {
	s := openTestStore(t)

	for i, acct := range []string{"a", "a", "b"} {
		require.NoError(t, s.InsertOrder(&OrderRecord{
			OrderID:   string(rune('x' + i)),
			ProductID: "p",
			AccountID: acct,
			Status:    "placed",
		}))
	}

	orders, err := s.ListOrdersByAccount("a")
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	orders, err = s.ListOrdersByAccount("missing")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)

	lastUsed := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.InsertSession(&SessionRecord{
		SessionID:  "sess-1",
		AccountID:  "acct-1",
		Status:     "active",
		Cookies:    []byte{0xde, 0xad, 0xbe, 0xef},
		LastUsedAt: &lastUsed,
	}))

	got, err := s.GetSession("sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, got.Cookies)
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, got.LastUsedAt.Equal(lastUsed))

	require.NoError(t, s.UpdateSessionStatus("sess-1", "expired"))
	got, err = s.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "expired", got.Status)

	require.NoError(t, s.DeleteSession("sess-1"))
	got, err = s.GetSession("sess-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListSessionsByAccount(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.InsertSession(&SessionRecord{SessionID: "s1", AccountID: "a", Status: "active"}))
	require.NoError(t, s.InsertSession(&SessionRecord{SessionID: "s2", AccountID: "a", Status: "active"}))
	require.NoError(t, s.InsertSession(&SessionRecord{SessionID: "s3", AccountID: "b", Status: "active"}))

	sessions, err := s.ListSessionsByAccount("a")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}
