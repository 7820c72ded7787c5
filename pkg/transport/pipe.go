package transport

import (
	"context"
	"net"
	"sync"
)

// pipeAddr is the address reported by Pipe endpoints.
type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

// Pipe is an in-memory signaling transport for tests. It is a net.Listener
// whose connections are created by Dial, backed by synchronous net.Pipe
// pairs, so a Manager pair can be exercised without real networking.
type Pipe struct {
	accept chan net.Conn

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewPipe creates a Pipe.
func NewPipe() *Pipe {
	return &Pipe{
		accept: make(chan net.Conn),
		done:   make(chan struct{}),
	}
}

// Dial creates a new connection; the other end is returned from Accept.
// The addr argument is ignored.
func (p *Pipe) Dial(ctx context.Context, _ string) (net.Conn, error) {
	local, remote := net.Pipe()

	select {
	case p.accept <- remote:
		return local, nil
	case <-p.done:
		local.Close()
		remote.Close()
		return nil, ErrClosed
	case <-ctx.Done():
		local.Close()
		remote.Close()
		return nil, ctx.Err()
	}
}

// Accept waits for the next dialed connection.
func (p *Pipe) Accept() (net.Conn, error) {
	select {
	case conn := <-p.accept:
		return conn, nil
	case <-p.done:
		return nil, ErrClosed
	}
}

// Close shuts the pipe down; pending and future Dial and Accept calls fail.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	close(p.done)
	return nil
}

// Addr returns a placeholder address.
func (p *Pipe) Addr() net.Addr {
	return pipeAddr{}
}
