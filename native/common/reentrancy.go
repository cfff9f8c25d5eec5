package common

import "errors"

// ErrReentrant is returned when a mutating entry point is invoked while a
// previous mutation on the same module is still in flight.
var ErrReentrant = errors.New("reentrant call")

// ReentrancyGuard rejects nested mutations. It is a flag, not a lock: it does
// not make the guarded module safe for concurrent use. Callers delivering
// operations from several goroutines serialize them first.
type ReentrancyGuard struct {
	entered bool
}

// Enter marks a mutation as in flight. It fails with ErrReentrant when one
// already is. Every successful Enter must be paired with Exit.
func (g *ReentrancyGuard) Enter() error {
	if g.entered {
		return ErrReentrant
	}
	g.entered = true
	return nil
}

// Exit clears the in-flight flag.
func (g *ReentrancyGuard) Exit() {
	g.entered = false
}

// Entered reports whether a mutation is in flight.
func (g *ReentrancyGuard) Entered() bool {
	return g.entered
}
