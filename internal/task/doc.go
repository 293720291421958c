// Package task implements the download scheduling core: the task model and
// its status state machine, the priority-ordered pending queue, the
// bounded-concurrency dispatch loop, the worker that drives a single task to
// a terminal status, and the administrative control surface.
//
// The scheduler owns all shared mutable state (the task index, the pending
// queue, the active set, and the global speed limit) behind a single lock.
// Observers receive snapshot copies, never references into that state.
package task
