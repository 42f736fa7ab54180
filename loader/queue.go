package loader

import (
	"container/list"
	"sync"
)

// queue is a synchronized task list. Every task remembers the queue it
// is on and its element, so removal does not search.
type queue struct {
	name  string
	mutex sync.Mutex
	tasks list.List
}

func newQueue(name string) *queue {
	q := &queue{name: name}
	q.tasks.Init()
	return q
}

func (q *queue) pushBack(t *Task) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.attach(t)
	t.elem = q.tasks.PushBack(t)
}

func (q *queue) pushFront(t *Task) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.attach(t)
	t.elem = q.tasks.PushFront(t)
}

func (q *queue) attach(t *Task) {
	if t.owner != nil {
		panic("loader: task " + q.name + " push while queued on " + t.owner.name)
	}
	t.owner = q
}

func (q *queue) popFront() *Task {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	e := q.tasks.Front()
	if e == nil {
		return nil
	}
	t := q.tasks.Remove(e).(*Task)
	t.owner, t.elem = nil, nil
	return t
}

// remove takes t off the queue. It reports false when t is not on it.
func (q *queue) remove(t *Task) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if t.owner != q {
		return false
	}
	q.tasks.Remove(t.elem)
	t.owner, t.elem = nil, nil
	return true
}

func (q *queue) has(t *Task) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return t.owner == q
}

func (q *queue) len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.tasks.Len()
}

func (q *queue) empty() bool {
	return q.len() == 0
}
