// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import "sync"

// A StringList is a list of strings which may be shared by many
// handles, for example a common set of header lines.
//
// The contents of a StringList are read when a transfer starts, so
// changes affect every handle referencing the list from its next
// transfer onward. StringList is safe for concurrent use.
type StringList struct {
	mu    sync.RWMutex
	items []string
}

// NewStringList returns a list holding items.
func NewStringList(items ...string) *StringList {
	return &StringList{items: append([]string(nil), items...)}
}

// Add appends s to the list.
func (l *StringList) Add(s string) {
	l.mu.Lock()
	l.items = append(l.items, s)
	l.mu.Unlock()
}

// Clear empties the list.
func (l *StringList) Clear() {
	l.mu.Lock()
	l.items = nil
	l.mu.Unlock()
}

// Len returns the number of items in the list.
func (l *StringList) Len() int {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Items returns a copy of the list contents. A nil list has no items.
func (l *StringList) Items() []string {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.items...)
}
