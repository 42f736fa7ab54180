package loader

// Handle addresses a task in the pool. A handle outlives its task; once
// the slot is reused the old handle no longer resolves.
type Handle struct {
	index      uint32
	generation uint32
}

// Valid reports whether h was ever handed out.
func (h Handle) Valid() bool {
	return h.generation != 0
}

// pool is a generational arena of tasks. It is guarded by the
// foreground lock of its Context.
type pool struct {
	tasks []*Task
	free  []uint32
	live  int
}

func (p *pool) alloc() *Task {
	var t *Task
	if n := len(p.free); n > 0 {
		index := p.free[n-1]
		p.free = p.free[:n-1]
		t = p.tasks[index]
		generation := t.handle.generation
		*t = Task{}
		t.handle = Handle{index: index, generation: generation}
	} else {
		t = &Task{handle: Handle{index: uint32(len(p.tasks)), generation: 1}}
		p.tasks = append(p.tasks, t)
	}
	p.live++
	return t
}

func (p *pool) get(h Handle) *Task {
	if !h.Valid() || int(h.index) >= len(p.tasks) {
		return nil
	}
	t := p.tasks[h.index]
	if t.handle != h || t.freed {
		return nil
	}
	return t
}

func (p *pool) release(t *Task) {
	if t.freed {
		return
	}
	t.freed = true
	t.handle.generation++
	if t.handle.generation == 0 {
		t.handle.generation = 1
	}
	p.free = append(p.free, t.handle.index)
	p.live--
}
