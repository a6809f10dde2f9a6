package forkjoin

import "sync"

// deque is a double-ended task queue. The owning worker uses the bottom,
// thieves take from the top.
type deque struct {
	mu    sync.Mutex
	tasks []Task
	head  int // index of the top element
}

func (d *deque) pushBottom(t Task) {
	d.mu.Lock()
	if d.head > 0 && d.head >= len(d.tasks)/2 {
		// compact the stolen prefix before growing
		n := copy(d.tasks, d.tasks[d.head:])
		clear(d.tasks[n:])
		d.tasks = d.tasks[:n]
		d.head = 0
	}
	d.tasks = append(d.tasks, t)
	d.mu.Unlock()
}

func (d *deque) popBottom() (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	last := len(d.tasks) - 1
	if last < d.head {
		return nil, false
	}
	t := d.tasks[last]
	d.tasks[last] = nil
	d.tasks = d.tasks[:last]
	if d.head == len(d.tasks) {
		d.tasks = d.tasks[:0]
		d.head = 0
	}
	return t, true
}

func (d *deque) steal() (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.head >= len(d.tasks) {
		return nil, false
	}
	t := d.tasks[d.head]
	d.tasks[d.head] = nil
	d.head++
	if d.head == len(d.tasks) {
		d.tasks = d.tasks[:0]
		d.head = 0
	}
	return t, true
}

func (d *deque) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks) - d.head
}
