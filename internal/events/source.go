// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package events provides a small typed listener registry. Each subscription
// returns a handle that must be cancelled to stop delivery.
package events

import (
	"sync"
)

// Subscription is a handle to a registered listener
type Subscription interface {
	Cancel()
}

// Source dispatches values of type T to its listeners, synchronously and in
// registration order. The zero value is ready to use.
type Source[T any] struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []listener[T]
}

type listener[T any] struct {
	id uint64
	fn func(T)
}

type subscription[T any] struct {
	source *Source[T]
	id     uint64
	once   sync.Once
}

func (s *subscription[T]) Cancel() {
	s.once.Do(func() { s.source.remove(s.id) })
}

// Subscribe registers fn and returns its handle
func (s *Source[T]) Subscribe(fn func(T)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.listeners = append(s.listeners, listener[T]{id: s.nextID, fn: fn})
	return &subscription[T]{source: s, id: s.nextID}
}

func (s *Source[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

// Dispatch delivers v to every listener registered at the time of the call
func (s *Source[T]) Dispatch(v T) {
	s.mu.Lock()
	snapshot := make([]listener[T], len(s.listeners))
	copy(snapshot, s.listeners)
	s.mu.Unlock()

	for _, l := range snapshot {
		l.fn(v)
	}
}

// Len returns the number of active listeners
func (s *Source[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Group cancels a set of subscriptions together
type Group struct {
	mu   sync.Mutex
	subs []Subscription
}

// Add tracks sub for a later Cancel
func (g *Group) Add(sub Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = append(g.subs, sub)
}

// Cancel cancels every tracked subscription
func (g *Group) Cancel() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
}
