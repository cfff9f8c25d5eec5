package common

import (
	"errors"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a mutable PauseView keyed by module name.
type PauseSet struct {
	mu      sync.RWMutex
	modules map[string]bool
}

// NewPauseSet returns a PauseSet with the supplied modules paused.
func NewPauseSet(paused ...string) *PauseSet {
	set := &PauseSet{modules: make(map[string]bool)}
	for _, module := range paused {
		set.SetPaused(module, true)
	}
	return set
}

// SetPaused toggles the pause flag for module.
func (p *PauseSet) SetPaused(module string, paused bool) {
	if p == nil {
		return
	}
	module = strings.ToLower(strings.TrimSpace(module))
	if module == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.modules == nil {
		p.modules = make(map[string]bool)
	}
	if paused {
		p.modules[module] = true
		return
	}
	delete(p.modules, module)
}

// IsPaused implements PauseView.
func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modules[strings.ToLower(strings.TrimSpace(module))]
}
