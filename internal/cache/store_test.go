package cache_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"taskflow/internal/cache"
	"taskflow/internal/model"
)

func makeTask(name string) model.Task {
	return model.Task{
		ID:       uuid.New(),
		Name:     name,
		Status:   model.StatusTodo,
		Priority: model.PriorityMedium,
	}
}

func TestStore_WriteRead(t *testing.T) {
	// Arrange
	store := cache.NewStore(time.Minute)
	task := makeTask("Prepare report")
	pagination := model.Pagination{Page: 1, Limit: 10, Total: 1, TotalPages: 1}

	// Act
	store.Write(cache.ScopeAdmin, "tasks?page=1", []model.Task{task}, pagination, time.Now())
	entry := store.Read(cache.ScopeAdmin, "tasks?page=1")

	// Assert
	assert.NotNil(t, entry)
	assert.False(t, entry.Stale)
	assert.Len(t, entry.Tasks, 1)
	assert.Equal(t, task.ID, entry.Tasks[0].ID)
	assert.Equal(t, pagination, entry.Pagination)
}

func TestStore_ReadMiss(t *testing.T) {
	store := cache.NewStore(time.Minute)

	assert.Nil(t, store.Read(cache.ScopeAdmin, "tasks?page=1"))
}

func TestStore_ScopesAreIndependent(t *testing.T) {
	store := cache.NewStore(time.Minute)
	task := makeTask("Admin only")

	store.Write(cache.ScopeAdmin, "tasks?page=1", []model.Task{task}, model.Pagination{}, time.Now())

	// Запись в admin scope не видна из user scope
	assert.NotNil(t, store.Read(cache.ScopeAdmin, "tasks?page=1"))
	assert.Nil(t, store.Read(cache.ScopeUser, "tasks?page=1"))
}

func TestStore_WriteDeduplicates(t *testing.T) {
	store := cache.NewStore(time.Minute)
	task := makeTask("Duplicated")
	other := makeTask("Unique")

	store.Write(cache.ScopeAdmin, "tasks?page=1", []model.Task{task, other, task}, model.Pagination{}, time.Now())
	entry := store.Read(cache.ScopeAdmin, "tasks?page=1")

	assert.Len(t, entry.Tasks, 2)
	assert.Equal(t, task.ID, entry.Tasks[0].ID)
	assert.Equal(t, other.ID, entry.Tasks[1].ID)
}

func TestStore_ExpiredEntryServedAndRefetched(t *testing.T) {
	// Arrange: запись старше окна устаревания
	store := cache.NewStore(50 * time.Millisecond)
	var refetched []string
	store.OnRefetch(func(scope cache.Scope, filterSet string) {
		refetched = append(refetched, string(scope)+"|"+filterSet)
	})
	task := makeTask("Old news")
	store.Write(cache.ScopeUser, "tasks?page=1", []model.Task{task}, model.Pagination{}, time.Now().Add(-time.Second))

	// Act
	entry := store.Read(cache.ScopeUser, "tasks?page=1")

	// Assert: устаревшая запись отдается сразу, но помечается stale
	assert.NotNil(t, entry)
	assert.True(t, entry.Stale)
	assert.Len(t, entry.Tasks, 1)
	assert.Equal(t, []string{"user|tasks?page=1"}, refetched)

	// Повторное чтение не планирует второй refetch
	store.Read(cache.ScopeUser, "tasks?page=1")
	assert.Len(t, refetched, 1)
}

func TestStore_InvalidateByPrefix(t *testing.T) {
	store := cache.NewStore(time.Minute)
	var refetched []string
	store.OnRefetch(func(scope cache.Scope, filterSet string) {
		refetched = append(refetched, filterSet)
	})
	now := time.Now()
	store.Write(cache.ScopeAdmin, "tasks?page=1", []model.Task{makeTask("a")}, model.Pagination{}, now)
	store.Write(cache.ScopeAdmin, "tasks?page=2", []model.Task{makeTask("b")}, model.Pagination{}, now)
	store.Write(cache.ScopeAdmin, "other?x=1", []model.Task{makeTask("c")}, model.Pagination{}, now)

	store.Invalidate(cache.ScopeAdmin, "tasks")

	// Обе записи с префиксом стали stale, но их содержимое сохранилось
	first := store.Read(cache.ScopeAdmin, "tasks?page=1")
	second := store.Read(cache.ScopeAdmin, "tasks?page=2")
	other := store.Read(cache.ScopeAdmin, "other?x=1")
	assert.True(t, first.Stale)
	assert.True(t, second.Stale)
	assert.False(t, other.Stale)
	assert.Len(t, first.Tasks, 1)
	assert.ElementsMatch(t, []string{"tasks?page=1", "tasks?page=2"}, refetched)
}

func TestStore_PatchReachesEveryEntryContainingTask(t *testing.T) {
	// Arrange: одна и та же задача в двух отфильтрованных списках
	store := cache.NewStore(time.Minute)
	shared := makeTask("Shared")
	now := time.Now()
	store.Write(cache.ScopeAdmin, "tasks?page=1", []model.Task{shared, makeTask("x")}, model.Pagination{}, now)
	store.Write(cache.ScopeAdmin, "tasks?status=TODO", []model.Task{shared}, model.Pagination{}, now)
	store.Write(cache.ScopeAdmin, "tasks?status=BLOCKED", []model.Task{makeTask("y")}, model.Pagination{}, now)

	key := shared.ID.String()

	// Act
	store.Patch(cache.ScopeAdmin, func(task *model.Task) bool { return task.Key() == key },
		func(entry *cache.Entry) {
			entry.Merge(key, func(task *model.Task) {
				task.Status = model.StatusInProgress
			})
		})

	// Assert
	assert.Equal(t, model.StatusInProgress, store.Read(cache.ScopeAdmin, "tasks?page=1").Tasks[0].Status)
	assert.Equal(t, model.StatusInProgress, store.Read(cache.ScopeAdmin, "tasks?status=TODO").Tasks[0].Status)
	assert.Equal(t, model.StatusTodo, store.Read(cache.ScopeAdmin, "tasks?status=BLOCKED").Tasks[0].Status)
}

func TestStore_SnapshotRestoreIsExact(t *testing.T) {
	// Arrange
	store := cache.NewStore(time.Minute)
	task := makeTask("Precious state")
	task.Tags = []string{"alpha", "beta"}
	pagination := model.Pagination{Page: 1, Limit: 10, Total: 1, TotalPages: 1}
	store.Write(cache.ScopeUser, "tasks?page=1", []model.Task{task}, pagination, time.Now())
	before := store.Read(cache.ScopeUser, "tasks?page=1")

	snapshot := store.Snapshot(cache.ScopeUser)

	// Act: портим состояние и откатываемся
	store.PatchEvery(cache.ScopeUser, func(_ string, entry *cache.Entry) {
		entry.Remove(task.ID.String())
	})
	store.Restore(cache.ScopeUser, snapshot)

	// Assert: состояние в точности равно исходному
	after := store.Read(cache.ScopeUser, "tasks?page=1")
	assert.Equal(t, before.Tasks, after.Tasks)
	assert.Equal(t, before.Pagination, after.Pagination)
}

func TestStore_ReadsReturnCopies(t *testing.T) {
	store := cache.NewStore(time.Minute)
	task := makeTask("Isolated")
	task.Tags = []string{"one"}
	store.Write(cache.ScopeAdmin, "tasks?page=1", []model.Task{task}, model.Pagination{}, time.Now())

	entry := store.Read(cache.ScopeAdmin, "tasks?page=1")
	entry.Tasks[0].Name = "Mutated"
	entry.Tasks[0].Tags[0] = "changed"

	fresh := store.Read(cache.ScopeAdmin, "tasks?page=1")
	assert.Equal(t, "Isolated", fresh.Tasks[0].Name)
	assert.Equal(t, "one", fresh.Tasks[0].Tags[0])
}

func TestEntry_InsertRemoveMaintainPagination(t *testing.T) {
	entry := &cache.Entry{
		Pagination: model.Pagination{Page: 1, Limit: 2, Total: 2, TotalPages: 1},
	}
	first := makeTask("first")
	second := makeTask("second")

	entry.Insert(first)
	entry.Insert(second)
	assert.Equal(t, int64(4), entry.Pagination.Total)
	assert.Equal(t, 2, entry.Pagination.TotalPages)
	// Вставка существующей задачи заменяет, а не дублирует
	entry.Insert(first)
	assert.Len(t, entry.Tasks, 2)
	assert.Equal(t, int64(4), entry.Pagination.Total)

	assert.True(t, entry.Remove(first.ID.String()))
	assert.Equal(t, int64(3), entry.Pagination.Total)
	assert.False(t, entry.Remove(first.ID.String()))
}

func TestEntry_ReplaceByCorrelation(t *testing.T) {
	provisional := model.Task{Name: "draft", Correlation: "pending:7"}
	confirmed := makeTask("draft")
	entry := &cache.Entry{Tasks: []model.Task{makeTask("other"), provisional}}

	assert.True(t, entry.ReplaceByCorrelation("pending:7", confirmed))
	assert.Len(t, entry.Tasks, 2)
	assert.Equal(t, confirmed.ID, entry.Tasks[1].ID)
	assert.False(t, entry.Tasks[1].Pending())

	assert.False(t, entry.ReplaceByCorrelation("pending:7", confirmed))
}
