// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cart holds shopping-cart state. State only changes by dispatching
// an Action to a Store, which applies Reduce under its own lock.
package cart

import (
	"slices"
	"sync"
)

// Item is one cart line.
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DemoItem is the line appended by AddCart.
var DemoItem = Item{ID: "test", Name: "Product 1"}

// State is the cart contents in insertion order. Duplicate ids are allowed.
type State struct {
	Items []Item `json:"items"`
}

// Action is a cart mutation. The set of actions is closed.
type Action interface {
	isAction()
}

// AddCart appends DemoItem. ProductID is carried for logging only; it does
// not change what is appended.
type AddCart struct {
	ProductID string
}

// EmptyCart removes every line.
type EmptyCart struct{}

func (AddCart) isAction()   {}
func (EmptyCart) isAction() {}

// Reduce returns the state that results from applying a to s. s is not
// modified.
func Reduce(s State, a Action) State {
	switch a.(type) {
	case AddCart:
		items := make([]Item, len(s.Items), len(s.Items)+1)
		copy(items, s.Items)
		return State{Items: append(items, DemoItem)}
	case EmptyCart:
		return State{}
	default:
		return s
	}
}

// CartItems returns a copy of the lines of s.
func CartItems(s State) []Item {
	return slices.Clone(s.Items)
}

// Store owns one cart's State.
type Store struct {
	mu    sync.Mutex
	state State
}

// NewStore returns a Store with an empty cart.
func NewStore() *Store {
	return &Store{}
}

// Dispatch applies a and returns the new state.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, a)
	return s.state
}

// State returns the current state. Reduce never mutates a published slice,
// so the value is safe to read after the lock is released.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Sessions maps session ids to their Store. Carts live only in process
// memory.
type Sessions struct {
	mu     sync.Mutex
	stores map[string]*Store
}

// NewSessions returns an empty session registry.
func NewSessions() *Sessions {
	return &Sessions{stores: make(map[string]*Store)}
}

// Store returns the Store for sessionID, creating it on first use.
func (ss *Sessions) Store(sessionID string) *Store {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	st, ok := ss.stores[sessionID]
	if !ok {
		st = NewStore()
		ss.stores[sessionID] = st
	}
	return st
}

// Lookup returns the Store for sessionID without creating one.
func (ss *Sessions) Lookup(sessionID string) (*Store, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	st, ok := ss.stores[sessionID]
	return st, ok
}

// Len returns the number of sessions holding a cart.
func (ss *Sessions) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.stores)
}
