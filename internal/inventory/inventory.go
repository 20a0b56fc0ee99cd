// Package inventory holds the items a player collected during one level.
package inventory

import "sync"

// Item is a collected object.
type Item struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Inventory is an ordered, per-level item list. It never publishes on its
// own: the controller announces changes after calling Add.
type Inventory struct {
	mu    sync.RWMutex
	items []Item
}

// New creates an empty inventory.
func New() *Inventory {
	return &Inventory{}
}

// Add appends an item. Duplicates are allowed.
func (inv *Inventory) Add(item Item) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.items = append(inv.items, item)
}

// HasItem reports whether an item with the given id is held.
func (inv *Inventory) HasItem(id string) bool {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	for _, it := range inv.items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// Items returns a copy of the items in insertion order.
func (inv *Inventory) Items() []Item {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]Item, len(inv.items))
	copy(out, inv.items)
	return out
}

// Len returns the number of held items.
func (inv *Inventory) Len() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return len(inv.items)
}

// Clear drops every item.
func (inv *Inventory) Clear() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.items = nil
}
