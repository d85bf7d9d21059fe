// Package gallery loads the item metadata for every slot and walks each
// slot's image candidates until one of them serves.
package gallery

import (
	"sync"

	"nftmint/pkg/models"
)

// DisplayItem is one gallery slot. The candidate cursor only moves forward
// and only through the slot's Fallback.
type DisplayItem struct {
	SlotIndex     int                `json:"slot"`
	Name          string             `json:"name"`
	Description   string             `json:"description,omitempty"`
	Attributes    []models.Attribute `json:"attributes,omitempty"`
	CandidateURLs []string           `json:"candidates"`
	MetadataOK    bool               `json:"metadata_ok"`

	mu        sync.RWMutex
	cursor    int
	exhausted bool
}

// Cursor returns the index of the candidate currently in use.
func (d *DisplayItem) Cursor() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cursor
}

// Current returns the candidate URL currently in use, or "" when the slot has
// no candidates.
func (d *DisplayItem) Current() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.cursor >= len(d.CandidateURLs) {
		return ""
	}
	return d.CandidateURLs[d.cursor]
}

// Exhausted reports whether every candidate failed.
func (d *DisplayItem) Exhausted() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.exhausted
}

// Fallback advances one item's candidate cursor on load failures.
type Fallback struct {
	item *DisplayItem
}

func NewFallback(item *DisplayItem) *Fallback {
	return &Fallback{item: item}
}

// OnLoadFailure records that the current candidate failed. It returns true
// when another candidate is available and the cursor moved to it, false once
// the list is exhausted. After exhaustion it is a no-op.
func (f *Fallback) OnLoadFailure() bool {
	d := f.item
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.exhausted {
		return false
	}
	if d.cursor+1 < len(d.CandidateURLs) {
		d.cursor++
		return true
	}
	d.exhausted = true
	return false
}

// ItemView is a point-in-time copy of a DisplayItem for rendering.
type ItemView struct {
	SlotIndex   int                `json:"slot"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Attributes  []models.Attribute `json:"attributes,omitempty"`
	Candidates  []string           `json:"candidates"`
	Cursor      int                `json:"cursor"`
	Current     string             `json:"current"`
	Exhausted   bool               `json:"exhausted"`
	MetadataOK  bool               `json:"metadata_ok"`
}

func (d *DisplayItem) View() ItemView {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v := ItemView{
		SlotIndex:   d.SlotIndex,
		Name:        d.Name,
		Description: d.Description,
		Attributes:  d.Attributes,
		Candidates:  append([]string(nil), d.CandidateURLs...),
		Cursor:      d.cursor,
		Exhausted:   d.exhausted,
		MetadataOK:  d.MetadataOK,
	}
	if d.cursor < len(d.CandidateURLs) {
		v.Current = d.CandidateURLs[d.cursor]
	}
	return v
}
