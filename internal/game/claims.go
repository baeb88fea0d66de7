package game

import "sync"

// ClaimOutcome is what a waiting player learns when its claim leaves the queue.
type ClaimOutcome int

const (
	ClaimNotAdmitted ClaimOutcome = iota
	ClaimAwarded
	ClaimPenalized
	ClaimInvalidated
	ClaimAborted
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimNotAdmitted:
		return "not admitted"
	case ClaimAwarded:
		return "awarded"
	case ClaimPenalized:
		return "penalized"
	case ClaimInvalidated:
		return "invalidated"
	case ClaimAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ClaimQueue is the FIFO of players waiting for a verdict. Many players
// admit; only the dealer releases. A claim stays queued until its verdict is
// committed, so "no longer queued" is the waiter's release condition.
type ClaimQueue struct {
	mu       sync.Mutex
	order    []int
	queued   map[int]bool
	outcomes map[int]ClaimOutcome
	changed  chan struct{} // closed and replaced on every release
	wake     chan struct{}
	closed   bool
}

func NewClaimQueue() *ClaimQueue {
	return &ClaimQueue{
		queued:   make(map[int]bool),
		outcomes: make(map[int]ClaimOutcome),
		changed:  make(chan struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// Admit appends player unless it is already queued, the queue is closed, or
// valid reports false. valid runs under the queue lock, so the check and the
// append are one step with respect to Release.
func (q *ClaimQueue) Admit(player int, valid func() bool) bool {
	q.mu.Lock()
	if q.closed || q.queued[player] || !valid() {
		q.mu.Unlock()
		return false
	}
	q.order = append(q.order, player)
	q.queued[player] = true
	delete(q.outcomes, player)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Await blocks until player is no longer queued and returns its outcome.
// Closing done withdraws the claim and returns ClaimAborted.
func (q *ClaimQueue) Await(player int, done <-chan struct{}) ClaimOutcome {
	for {
		q.mu.Lock()
		if !q.queued[player] {
			o := q.outcomes[player]
			delete(q.outcomes, player)
			q.mu.Unlock()
			return o
		}
		if q.closed {
			q.mu.Unlock()
			return ClaimAborted
		}
		ch := q.changed
		q.mu.Unlock()

		select {
		case <-ch:
		case <-done:
			q.withdraw(player)
			return ClaimAborted
		}
	}
}

func (q *ClaimQueue) withdraw(player int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.remove(player)
}

func (q *ClaimQueue) remove(player int) bool {
	if !q.queued[player] {
		return false
	}
	delete(q.queued, player)
	for i, p := range q.order {
		if p == player {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Head returns the oldest queued player.
func (q *ClaimQueue) Head() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return 0, false
	}
	return q.order[0], true
}

// Release removes every listed player that is still queued, records its
// outcome and wakes all waiters once. Players not queued are ignored.
func (q *ClaimQueue) Release(outcomes map[int]ClaimOutcome) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for p, o := range outcomes {
		if q.remove(p) {
			q.outcomes[p] = o
		}
	}
	close(q.changed)
	q.changed = make(chan struct{})
}

// Wake fires after an admission. It holds at most one pending signal, so
// several admissions may coalesce into one wake-up.
func (q *ClaimQueue) Wake() <-chan struct{} {
	return q.wake
}

// Close aborts every waiter and refuses new claims.
func (q *ClaimQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.changed)
	q.changed = make(chan struct{})
}

func (q *ClaimQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Contains reports whether player has a live claim.
func (q *ClaimQueue) Contains(player int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queued[player]
}

func (q *ClaimQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Pending returns the queued players, oldest first.
func (q *ClaimQueue) Pending() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int(nil), q.order...)
}
