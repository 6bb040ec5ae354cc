package timer

import (
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestScheduleFiresCallback(t *testing.T) {
	m := NewManager()
	m.Start()
	defer m.Stop()

	var mu sync.Mutex
	fired := false

	err := m.Schedule("a", time.Now().Add(20*time.Millisecond), func() {
		mu.Lock()
		fired = true
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired
	})

	if m.Pending() != 0 {
		t.Fatalf("expected 0 pending tasks, got %d", m.Pending())
	}
}

func TestCancelPreventsCallback(t *testing.T) {
	m := NewManager()
	m.Start()
	defer m.Stop()

	var mu sync.Mutex
	fired := false

	_ = m.Schedule("a", time.Now().Add(50*time.Millisecond), func() {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	if !m.Cancel("a") {
		t.Fatal("cancel should report the task as pending")
	}
	if m.Cancel("a") {
		t.Fatal("second cancel should report nothing pending")
	}

	time.Sleep(120 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Fatal("cancelled task fired")
	}
}

func TestExpiredTasksFireInOrder(t *testing.T) {
	m := NewManager()
	m.Start()
	defer m.Stop()

	var mu sync.Mutex
	var order []string

	base := time.Now().Add(30 * time.Millisecond)
	for i, id := range []string{"first", "second", "third"} {
		id := id
		_ = m.Schedule(id, base.Add(time.Duration(i)*5*time.Millisecond), func() {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		})
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("tasks fired out of order: %v", order)
	}
}

func TestScheduleSameIDReplaces(t *testing.T) {
	m := NewManager()
	m.Start()
	defer m.Stop()

	var mu sync.Mutex
	var got string

	_ = m.Schedule("a", time.Now().Add(30*time.Millisecond), func() {
		mu.Lock()
		got = "old"
		mu.Unlock()
	})
	_ = m.Schedule("a", time.Now().Add(30*time.Millisecond), func() {
		mu.Lock()
		got = "new"
		mu.Unlock()
	})

	if m.Pending() != 1 {
		t.Fatalf("expected 1 pending task, got %d", m.Pending())
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != ""
	})

	mu.Lock()
	defer mu.Unlock()
	if got != "new" {
		t.Fatalf("expected replacement callback, got %q", got)
	}
}

func TestEarlierTaskPreemptsWait(t *testing.T) {
	m := NewManager()
	m.Start()
	defer m.Stop()

	var mu sync.Mutex
	var order []string

	_ = m.Schedule("late", time.Now().Add(200*time.Millisecond), func() {
		mu.Lock()
		order = append(order, "late")
		mu.Unlock()
	})
	_ = m.Schedule("early", time.Now().Add(20*time.Millisecond), func() {
		mu.Lock()
		order = append(order, "early")
		mu.Unlock()
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "early" {
		t.Fatalf("earlier task did not fire first: %v", order)
	}
}

func TestScheduleAfterStop(t *testing.T) {
	m := NewManager()
	m.Start()
	m.Stop()

	err := m.Schedule("a", time.Now(), func() {})
	if err != ErrManagerStopped {
		t.Fatalf("expected ErrManagerStopped, got %v", err)
	}
}
