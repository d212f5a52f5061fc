package presence

import "sync"

// DisplayList is the ordered, name-keyed list a UI shows. The tracker only
// pushes changes into it and never reads it back, except for Len when
// appending.
type DisplayList interface {
	AddItem(name string, icon Icon)
	RemoveItem(index int)
	Clear()
	Len() int
}

type Item struct {
	Name string
	Icon Icon
}

// ItemList is a slice-backed DisplayList that is safe to read while the
// tracker writes to it.
type ItemList struct {
	mu    sync.RWMutex
	items []Item
}

func (l *ItemList) AddItem(name string, icon Icon) {
	l.mu.Lock()
	l.items = append(l.items, Item{Name: name, Icon: icon})
	l.mu.Unlock()
}

// RemoveItem drops the entry at index; out of range is ignored.
func (l *ItemList) RemoveItem(index int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.items) {
		return
	}
	l.items = append(l.items[:index], l.items[index+1:]...)
}

func (l *ItemList) Clear() {
	l.mu.Lock()
	l.items = nil
	l.mu.Unlock()
}

func (l *ItemList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Items returns a copy of the current entries in display order.
func (l *ItemList) Items() []Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

// Names returns just the entry names, in order.
func (l *ItemList) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.items))
	for i, it := range l.items {
		out[i] = it.Name
	}
	return out
}
