// Package timer provides a min-heap of wall-clock tasks with a single
// dispatch goroutine. Callbacks run inline on that goroutine so expiry order
// is preserved; keep them short.
package timer

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

var ErrManagerStopped = errors.New("timer manager is stopped")

// Task is a callback scheduled for future execution.
type Task struct {
	ID       string
	ExpiryAt time.Time
	Callback func()
	index    int
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].ExpiryAt.Before(h[j].ExpiryAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	task := x.(*Task)
	task.index = len(*h)
	*h = append(*h, task)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*h = old[0 : n-1]
	return task
}

// Manager owns the heap and the dispatch loop.
type Manager struct {
	mu      sync.Mutex
	heap    taskHeap
	tasks   map[string]*Task
	wakeup  chan struct{}
	stopCh  chan struct{}
	stopped bool
}

func NewManager() *Manager {
	m := &Manager{
		heap:   make(taskHeap, 0),
		tasks:  make(map[string]*Task),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	heap.Init(&m.heap)
	return m
}

func (m *Manager) Start() {
	go m.run()
}

func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	close(m.stopCh)
}

// Schedule adds a task; an existing task with the same ID is replaced.
func (m *Manager) Schedule(id string, expiryAt time.Time, callback func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrManagerStopped
	}

	if existing, ok := m.tasks[id]; ok {
		heap.Remove(&m.heap, existing.index)
		delete(m.tasks, id)
	}

	task := &Task{
		ID:       id,
		ExpiryAt: expiryAt,
		Callback: callback,
	}

	heap.Push(&m.heap, task)
	m.tasks[id] = task

	if m.heap[0] == task {
		select {
		case m.wakeup <- struct{}{}:
		default:
		}
	}

	return nil
}

// Cancel removes a scheduled task, reporting whether it was still pending.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return false
	}

	heap.Remove(&m.heap, task.index)
	delete(m.tasks, id)
	return true
}

// Pending returns the number of scheduled tasks.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *Manager) run() {
	for {
		m.mu.Lock()

		if m.stopped {
			m.mu.Unlock()
			return
		}

		var waitDuration time.Duration
		if m.heap.Len() == 0 {
			waitDuration = 24 * time.Hour
		} else {
			next := m.heap[0]
			waitDuration = time.Until(next.ExpiryAt)

			if waitDuration <= 0 {
				task := heap.Pop(&m.heap).(*Task)
				delete(m.tasks, task.ID)
				m.mu.Unlock()

				// Dispatch inline: expired tasks fire in heap order.
				task.Callback()
				continue
			}
		}

		m.mu.Unlock()

		t := time.NewTimer(waitDuration)
		select {
		case <-t.C:
		case <-m.wakeup:
			t.Stop()
		case <-m.stopCh:
			t.Stop()
			return
		}
	}
}
