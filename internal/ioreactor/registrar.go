// Package ioreactor implements the epoll-based readiness registrar
// and the single-threaded reactor loop (I/O Worker) that multiplexes
// the datagram and stream listeners over it.
package ioreactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Event flags mirror the level-triggered readiness facility's
// interest set: READ, WRITE, HUP, RDHUP.
const (
	EventRead  = unix.EPOLLIN
	EventWrite = unix.EPOLLOUT
	EventHUP   = unix.EPOLLHUP
	EventRDHUP = unix.EPOLLRDHUP
)

const (
	maxEvents = 32
	timeoutMs = 1000
)

// Registrar wraps a single epoll instance.
type Registrar struct {
	epollFD int
}

// NewRegistrar creates the underlying epoll instance.
func NewRegistrar() (*Registrar, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Registrar{epollFD: fd}, nil
}

// Register adds fd to the interest set with the given event mask.
func (r *Registrar) Register(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epollFD, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl(ADD, %d): %w", fd, err)
	}
	return nil
}

// Deregister removes fd from the interest set and closes it.
func (r *Registrar) Deregister(fd int) error {
	if err := unix.EpollCtl(r.epollFD, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		unix.Close(fd)
		return fmt.Errorf("epoll_ctl(DEL, %d): %w", fd, err)
	}
	return unix.Close(fd)
}

// Wait blocks for up to timeoutMs and returns the ready (fd, events)
// pairs, at most maxEvents of them.
func (r *Registrar) Wait() ([]unix.EpollEvent, error) {
	events := make([]unix.EpollEvent, maxEvents)
	n, err := unix.EpollWait(r.epollFD, events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("epoll_wait: %w", err)
	}
	return events[:n], nil
}

// FD exposes the raw epoll fd, mainly for diagnostics.
func (r *Registrar) FD() int {
	return r.epollFD
}

// Close releases the epoll instance itself.
func (r *Registrar) Close() error {
	return unix.Close(r.epollFD)
}
