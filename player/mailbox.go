package player

import "sync"

// Mailbox holds at most one pending command. A newer command overwrites an
// unread one; the reader tells new from old by sequence number.
type Mailbox struct {
	mu     sync.Mutex
	cmd    Command
	seq    uint64
	notify chan struct{}
}

func NewMailbox() *Mailbox {
	return &Mailbox{notify: make(chan struct{}, 1)}
}

func (b *Mailbox) Put(cmd Command) {
	b.mu.Lock()
	b.cmd = cmd
	b.seq++
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Take returns the current command if its sequence differs from seen.
func (b *Mailbox) Take(seen uint64) (Command, uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seq == seen {
		return None, seen, false
	}
	return b.cmd, b.seq, true
}

func (b *Mailbox) Notify() <-chan struct{} {
	return b.notify
}
