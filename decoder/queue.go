// SPDX-License-Identifier: EPL-2.0

package decoder

import (
	"container/heap"

	"github.com/google/uuid"

	"github.com/ik5/audxfade/buffers"
)

type taskState uint8

const (
	taskPending taskState = iota
	taskInProgress
	taskYielded
	taskParked
)

func (s taskState) String() string {
	switch s {
	case taskPending:
		return "pending"
	case taskInProgress:
		return "in_progress"
	case taskYielded:
		return "yielded"
	case taskParked:
		return "parked"
	}
	return "unknown"
}

// task is one request plus the state the scheduler keeps for it. The
// cursor survives yields so decoding resumes where it stopped.
type task struct {
	req    Request
	seq    uint64
	state  taskState
	handle *buffers.Handle
	cursor *cursor

	// blocked is set when the task yielded to backpressure.
	blocked   bool
	cancelled bool

	index int
}

func (t *task) id() uuid.UUID { return t.req.EntryID }

// taskQueue orders tasks by priority, then by arrival.
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].req.Priority != q[j].req.Priority {
		return q[i].req.Priority > q[j].req.Priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// remove drops t from the queue if it is queued.
func (q *taskQueue) remove(t *task) {
	if t.index >= 0 && t.index < q.Len() && (*q)[t.index] == t {
		heap.Remove(q, t.index)
	}
}

// waitingAbove reports whether a queued task outranks p and is runnable.
func (q taskQueue) waitingAbove(p Priority) bool {
	for _, t := range q {
		if t.req.Priority > p && (!t.blocked || t.handle.CanResumeDecoder()) {
			return true
		}
	}
	return false
}
