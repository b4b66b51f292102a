// Package tokens implements a channel-based counting semaphore, used to cap
// the Archive's open file descriptors and the Fetcher's outstanding HTTP
// requests. It follows the shape of rclone's lib/pacer.TokenDispenser: a
// buffered channel of empty structs, Get draining one, Put replacing one.
package tokens

// Dispenser hands out up to n concurrent permits.
type Dispenser struct {
	tokens chan struct{}
}

// NewDispenser creates a Dispenser with n permits available immediately.
func NewDispenser(n int) *Dispenser {
	td := &Dispenser{tokens: make(chan struct{}, n)}
	for i := 0; i < n; i++ {
		td.tokens <- struct{}{}
	}
	return td
}

// Get blocks until a permit is available.
func (td *Dispenser) Get() {
	<-td.tokens
}

// Put returns a permit.
func (td *Dispenser) Put() {
	td.tokens <- struct{}{}
}
