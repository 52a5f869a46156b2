package service

import "github.com/evdriver/evdriver/internal/core/domain"

// Inbox is the bounded single-consumer queue of domain.Command values
// described by spec.md §4.9. It is a plain, lock-free value type: the
// Control Engine actor owns it exclusively inside its own mailbox
// discipline, the same single-consumer guarantee an actor's serialized
// mailbox gives for free, so Inbox itself needs no synchronisation of
// its own.
type Inbox struct {
	capacity int
	pending  []domain.Command
}

func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = 32
	}
	return &Inbox{capacity: capacity}
}

// Push enqueues cmd. A newer command supersedes any still-pending command
// for the same Path (drop-oldest-duplicate-path); otherwise, if the queue
// is already at capacity, the new command is dropped (drop-newest for
// distinct paths, the rare-burst case the bound exists to absorb).
func (b *Inbox) Push(cmd domain.Command) {
	path := cmd.Path()
	for i, p := range b.pending {
		if p.Path() == path {
			b.pending[i] = cmd
			return
		}
	}
	if len(b.pending) >= b.capacity {
		return
	}
	b.pending = append(b.pending, cmd)
}

// Drain returns every pending command in arrival order and empties the
// queue, called once at the start of each control-loop tick.
func (b *Inbox) Drain() []domain.Command {
	if len(b.pending) == 0 {
		return nil
	}
	out := b.pending
	b.pending = nil
	return out
}

func (b *Inbox) Len() int { return len(b.pending) }
