// Package loader schedules texture loads. Textures are requested with a
// priority: high priority loads complete on the main goroutine, low
// priority ones are read by a single background worker and published by
// the next Update. Source data errors never reach the caller, a texture
// that cannot be loaded shows the shared missing texture instead.
package loader

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// package errors
var (
	ErrNoSource = errors.New("no texture source")
	ErrSize     = errors.New("texture does not fit the device")
	ErrClosed   = errors.New("loader closed")
)

// State is the progress of a task.
type State int32

// Task states, in order.
const (
	StateNone State = iota
	StateLoadBegun
	StateLoadMipmap
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateLoadBegun:
		return "load begun"
	case StateLoadMipmap:
		return "load mipmap"
	case StateComplete:
		return "complete"
	}
	return "none"
}

// Priority decides where a task is serviced.
type Priority int

// Priorities
const (
	Low Priority = iota
	High
)

func (p Priority) String() string {
	if p == High {
		return "high"
	}
	return "low"
}

// TaskKind tells full loads from thumbnail loads.
type TaskKind int

// Task kinds
const (
	FullLoad TaskKind = iota
	ThumbnailLoad
)

type atomicState struct {
	v atomic.Int32
}

func (s *atomicState) load() State {
	return State(s.v.Load())
}

func (s *atomicState) store(state State) {
	s.v.Store(int32(state))
}
