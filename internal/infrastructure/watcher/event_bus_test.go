package watcher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/knowflow/backend/internal/domain/events"
)

func TestEventBus_PublishAndSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var mu sync.Mutex
	var received []events.Event

	bus.Subscribe(events.TaskFinished, events.HandlerFunc(func(event events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
		return nil
	}))

	bus.Publish(events.NewTaskEvent(events.TaskFinished, "task-1", "crawl", "docs", "completed", 5, 5))

	// 事件异步分发，轮询等待
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	taskEvent, ok := received[0].(*events.TaskEvent)
	mu.Unlock()
	assert.True(t, ok)
	assert.Equal(t, "task-1", taskEvent.TaskID)
	assert.Equal(t, "docs", taskEvent.Repository)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var mu sync.Mutex
	count := 0

	unsub := bus.Subscribe(events.UploadFileCreated, events.HandlerFunc(func(event events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	}))

	bus.Publish(events.NewUploadFileEvent(events.UploadFileCreated, "wiki", "/tmp/a.txt"))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, 10*time.Millisecond)

	unsub()

	bus.Publish(events.NewUploadFileEvent(events.UploadFileCreated, "wiki", "/tmp/b.txt"))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "取消订阅后不应再收到事件")
}

func TestEventBus_HandlerPanicDoesNotAffectOthers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var mu sync.Mutex
	okCount := 0

	bus.Subscribe(events.TaskStarted, events.HandlerFunc(func(event events.Event) error {
		panic("boom")
	}))
	bus.Subscribe(events.TaskStarted, events.HandlerFunc(func(event events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		okCount++
		return nil
	}))

	bus.Publish(events.NewTaskEvent(events.TaskStarted, "task-2", "summary", "docs", "running", 0, 0))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return okCount == 1
	}, time.Second, 10*time.Millisecond)
}
