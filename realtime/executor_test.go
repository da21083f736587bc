package realtime

import (
	"sync"
	"testing"
	"time"
)

func TestSerialExecutorRunsTasksInPostOrder(t *testing.T) {
	executor := &serialExecutor{}
	var lock sync.Mutex
	var order []int
	done := make(chan struct{})

	for index := 0; index < 100; index++ {
		value := index
		executor.post(func() {
			lock.Lock()
			order = append(order, value)
			lock.Unlock()
		})
	}
	executor.post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatalf("executor did not drain")
	}
	for index, value := range order {
		if index != value {
			t.Fatalf("task %d ran at position %d", value, index)
		}
	}
}

func TestSerialExecutorNestedPostRunsAfterCurrentTask(t *testing.T) {
	executor := &serialExecutor{}
	var order []string
	done := make(chan struct{})

	executor.post(func() {
		executor.post(func() {
			order = append(order, "nested")
			close(done)
		})
		order = append(order, "outer")
	})

	<-done
	if len(order) != 2 || order[0] != "outer" || order[1] != "nested" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestSerialExecutorRecoversPanics(t *testing.T) {
	recovered := make(chan any, 1)
	executor := &serialExecutor{panics: func(value any) { recovered <- value }}
	done := make(chan struct{})

	executor.post(func() { panic("boom") })
	executor.post(func() { close(done) })

	<-done
	if value := <-recovered; value != "boom" {
		t.Fatalf("unexpected recovered value %v", value)
	}
}
