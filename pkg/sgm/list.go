/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

// List is an ordered sequence with a cached length, modeled after the
// driver's singly-linked add_tail/find_delete utility. A slice backs
// it directly; the "counter" invariant from the design (count always
// equals list length) falls out for free from len(), so List carries
// no separate counter field -- callers that need the count call Len.
type List[T any] struct {
	items []T
}

// AddTail appends v to the end of the list.
func (l *List[T]) AddTail(v T) {
	l.items = append(l.items, v)
}

// Len returns the number of elements currently in the list.
func (l *List[T]) Len() int {
	return len(l.items)
}

// Items returns the live backing slice. Callers must not retain it
// past the next mutating call.
func (l *List[T]) Items() []T {
	return l.items
}

// FindDelete removes the first element for which match returns true.
// Absence of a matching element is a no-op success, not an error --
// the caller is expected to log a diagnostic if that is unexpected,
// matching the driver's own "treat absence as a no-op" semantics.
func (l *List[T]) FindDelete(match func(T) bool) (removed bool) {
	for i, v := range l.items {
		if match(v) {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

// Find returns the first element for which match returns true.
func (l *List[T]) Find(match func(T) bool) (v T, ok bool) {
	for _, item := range l.items {
		if match(item) {
			return item, true
		}
	}
	return v, false
}

// PopFront removes and returns the first element. ok is false if the
// list was empty. The crash sweeper uses this instead of iterating
// the backing slice while destroying entries out from under itself.
func (l *List[T]) PopFront() (v T, ok bool) {
	if len(l.items) == 0 {
		return v, false
	}
	v = l.items[0]
	l.items = l.items[1:]
	return v, true
}

// ChannelMap translates a channel-map bit value to a dense array
// index. Indexes are assigned densely in first-seen order, so the
// table grows by one entry for each distinct value APM hands over.
type ChannelMap struct {
	index map[uint32]int
	next  int
}

// NewChannelMap constructs an empty translation table.
func NewChannelMap() *ChannelMap {
	return &ChannelMap{index: make(map[uint32]int)}
}

// IndexOf returns the dense index for a channel-map value, assigning
// a fresh one the first time a value is seen.
func (c *ChannelMap) IndexOf(channelMapValue uint32) int {
	if idx, ok := c.index[channelMapValue]; ok {
		return idx
	}
	idx := c.next
	c.index[channelMapValue] = idx
	c.next++
	return idx
}

// Len returns how many distinct channel-map values have been indexed.
func (c *ChannelMap) Len() int {
	return c.next
}

// InstanceSet is a set of module instance ids, used by the splitter
// for O(1) membership classification instead of walking module lists
// linearly per connection (see the design notes on hash-set
// membership for cyclic-graph safety).
type InstanceSet map[uint32]struct{}

// NewInstanceSet builds a set from the given instance ids.
func NewInstanceSet(ids ...uint32) InstanceSet {
	s := make(InstanceSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is a member.
func (s InstanceSet) Contains(id uint32) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id into the set.
func (s InstanceSet) Add(id uint32) {
	s[id] = struct{}{}
}
