package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Preview is the display copy of a selected image.
type Preview struct {
	Name      string
	MediaType string
	Data      []byte
	Issued    time.Time
}

// PreviewStore holds preview payloads behind random handles. Handles are
// issued by a Workflow when an image is selected and released by the same
// Workflow when the selection is superseded, cleared, submitted
// successfully, or the session ends.
type PreviewStore struct {
	mu      sync.RWMutex
	entries map[PreviewRef]Preview
	bytes   int64
}

// NewPreviewStore creates an empty store.
func NewPreviewStore() *PreviewStore {
	return &PreviewStore{entries: make(map[PreviewRef]Preview)}
}

// Issue stores f for display and returns its handle.
func (p *PreviewStore) Issue(f File) PreviewRef {
	ref := PreviewRef(uuid.NewString())

	p.mu.Lock()
	p.entries[ref] = Preview{
		Name:      f.Name,
		MediaType: f.MediaType,
		Data:      f.Data,
		Issued:    time.Now(),
	}
	p.bytes += f.Size()
	p.mu.Unlock()

	return ref
}

// Open returns the preview for ref.
func (p *PreviewStore) Open(ref PreviewRef) (Preview, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pv, ok := p.entries[ref]
	if !ok {
		return Preview{}, ErrPreviewNotFound
	}
	return pv, nil
}

// Release drops ref. It reports whether the handle was live; releasing
// twice is harmless.
func (p *PreviewStore) Release(ref PreviewRef) bool {
	if ref == "" {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pv, ok := p.entries[ref]
	if !ok {
		return false
	}
	delete(p.entries, ref)
	p.bytes -= int64(len(pv.Data))
	return true
}

// Len returns the number of live handles.
func (p *PreviewStore) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Bytes returns the total payload size held.
func (p *PreviewStore) Bytes() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bytes
}
