package realtime

import "sync"

// serialExecutor runs posted tasks one at a time in post order. A drain
// goroutine exists only while tasks are pending, so an idle client holds no
// goroutines. Tasks may post further tasks; they run after the current one.
type serialExecutor struct {
	lock     sync.Mutex
	tasks    []func()
	draining bool
	panics   func(recovered any)
}

func (executor *serialExecutor) post(task func()) {
	if task == nil {
		return
	}

	executor.lock.Lock()
	executor.tasks = append(executor.tasks, task)
	start := !executor.draining
	executor.draining = true
	executor.lock.Unlock()

	if start {
		go executor.drain()
	}
}

func (executor *serialExecutor) drain() {
	for {
		executor.lock.Lock()
		if len(executor.tasks) == 0 {
			executor.draining = false
			executor.lock.Unlock()
			return
		}
		task := executor.tasks[0]
		executor.tasks[0] = nil
		executor.tasks = executor.tasks[1:]
		executor.lock.Unlock()

		executor.run(task)
	}
}

func (executor *serialExecutor) run(task func()) {
	defer func() {
		if recovered := recover(); recovered != nil && executor.panics != nil {
			executor.panics(recovered)
		}
	}()
	task()
}
