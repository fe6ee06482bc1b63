// Package reactor implements the daemon's single-threaded cooperative
// event loop primitive: one poll(2) call per iteration over every
// registered file descriptor, with no goroutine of its own. Callers
// drive the loop themselves (see internal/app), calling Poll once per
// iteration and reacting to whichever fds came back ready.
//
// This is a deliberate departure from a goroutine-per-connection
// model: the daemon's shared state (the clients table, pending-LSP
// map, deferred-request queues) is read and written only from the
// thread that calls Poll, so none of it needs locking.
package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Interest is a bitmask of readiness a caller wants reported for a
// registered fd.
type Interest int

const (
	Readable Interest = 1 << iota
	Writable
)

// Ready reports which interests were observed for a fd after Poll.
type Ready struct {
	Fd       int
	Readable bool
	Writable bool
	Hup      bool
	Err      bool
}

// Reactor holds the current poll set. Fds are re-registered every
// iteration by the caller (via Reset then Add per live fd), mirroring
// "build a poll set" as its own explicit step rather than maintaining
// mutable long-lived registrations.
type Reactor struct {
	fds []unix.PollFd
}

// New returns an empty Reactor.
func New() *Reactor {
	return &Reactor{}
}

// Reset clears the poll set for a new iteration.
func (r *Reactor) Reset() {
	r.fds = r.fds[:0]
}

// Add registers fd with the given interests for the next Poll call.
func (r *Reactor) Add(fd int, interest Interest) {
	var events int16
	if interest&Readable != 0 {
		events |= unix.POLLIN
	}
	if interest&Writable != 0 {
		events |= unix.POLLOUT
	}
	r.fds = append(r.fds, unix.PollFd{Fd: int32(fd), Events: events})
}

// Poll blocks until a registered fd is ready or timeout elapses
// (a negative timeout blocks indefinitely; zero returns immediately).
// It returns the subset of the poll set that came back ready.
func (r *Reactor) Poll(timeout time.Duration) ([]Ready, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}

	n, err := unix.Poll(r.fds, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	out := make([]Ready, 0, n)
	for _, pfd := range r.fds {
		if pfd.Revents == 0 {
			continue
		}
		out = append(out, Ready{
			Fd:       int(pfd.Fd),
			Readable: pfd.Revents&(unix.POLLIN|unix.POLLHUP) != 0,
			Writable: pfd.Revents&unix.POLLOUT != 0,
			Hup:      pfd.Revents&unix.POLLHUP != 0,
			Err:      pfd.Revents&unix.POLLERR != 0,
		})
	}
	return out, nil
}
