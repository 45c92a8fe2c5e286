package transport

import "sync"

// Visibility tracks whether the chat view is in the foreground. Polling
// skips refreshes while hidden; the socket transport reports presence
// changes. Starts visible.
type Visibility struct {
	mu        sync.RWMutex
	visible   bool
	listeners []func(bool)
}

func NewVisibility() *Visibility {
	return &Visibility{visible: true}
}

func (v *Visibility) Visible() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.visible
}

// Set flips the state and notifies listeners; setting the same state twice
// is a no-op.
func (v *Visibility) Set(visible bool) {
	v.mu.Lock()
	if v.visible == visible {
		v.mu.Unlock()
		return
	}
	v.visible = visible
	listeners := make([]func(bool), len(v.listeners))
	copy(listeners, v.listeners)
	v.mu.Unlock()

	for _, listener := range listeners {
		listener(visible)
	}
}

func (v *Visibility) OnChange(listener func(bool)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listeners = append(v.listeners, listener)
}
