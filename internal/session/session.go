// Package session implements the Session object of spec.md §4.3: a thin
// wrapper around one backend.Backend pane, running a reader task and a
// writer task over channels, so the core controller never touches the
// backend's raw io directly. Grounded on the teacher's internal/session
// instance-lifecycle conventions (reader/writer goroutines around a PTY,
// an exit flag, a last-activity timestamp), transformed from the teacher's
// direct os/exec PTY ownership to owning a backend.PaneHandle instead.
package session

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agentpane/paneboard/internal/backend"
	"github.com/agentpane/paneboard/internal/logging"
)

var sessionLog = logging.ForComponent(logging.CompSession)

// ScreenSink receives decoded pane output. The screen parser/emulator
// itself is out of scope (spec.md §1 "Out of scope"); this interface is
// the seam a future parser attaches to.
type ScreenSink interface {
	Write(chunk []byte)
}

// nullSink discards output; used when a caller doesn't need parsed screen
// state, only liveness and last-output tracking.
type nullSink struct{}

func (nullSink) Write([]byte) {}

// inputBufferCapacity bounds the writer task's input channel. A full
// buffer applies backpressure to Session.Write rather than dropping bytes,
// since writer input (unlike pane output) must never be silently lost.
const inputBufferCapacity = 256

// Session wraps one backend pane: a reader task feeding a ScreenSink and
// stamping a last-output timestamp, and a writer task draining a
// single-writer input channel (spec.md §4.3 "Session object").
type Session struct {
	ID uuid.UUID

	backend  backend.Backend
	handle   *backend.PaneHandle
	sink     ScreenSink

	input chan []byte
	done  chan struct{}

	exited atomic.Bool

	mu             sync.Mutex
	lastOutputTime time.Time
}

// New wraps handle as a Session identified by id, feeding output to sink
// (or a no-op sink if nil), and starts its reader and writer tasks.
func New(id uuid.UUID, be backend.Backend, handle *backend.PaneHandle, sink ScreenSink) *Session {
	if sink == nil {
		sink = nullSink{}
	}
	s := &Session{
		ID:      id,
		backend: be,
		handle:  handle,
		sink:    sink,
		input:   make(chan []byte, inputBufferCapacity),
		done:    make(chan struct{}),
	}
	if len(handle.InitialScreenBytes) > 0 {
		sink.Write(handle.InitialScreenBytes)
		s.mu.Lock()
		s.lastOutputTime = time.Now()
		s.mu.Unlock()
	}
	go s.readLoop()
	go s.writeLoop()
	return s
}

// readLoop feeds decoded pane output to the sink and stamps the last-output
// timestamp on every chunk; on EOF or error it sets the exit flag and
// returns (spec.md §4.3).
func (s *Session) readLoop() {
	buf := make([]byte, 8192)
	for {
		n, err := s.handle.Reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.sink.Write(chunk)
			s.mu.Lock()
			s.lastOutputTime = time.Now()
			s.mu.Unlock()
		}
		if err != nil {
			s.markExited()
			return
		}
	}
}

// writeLoop drains the input channel into the backend writer; on write
// error, or once done is closed, it marks the session exited and returns
// (spec.md §4.3 "Cooperative cancellation": shutdown closes done, which is
// sufficient to terminate this loop without an explicit cancellation
// token).
func (s *Session) writeLoop() {
	for {
		select {
		case b := <-s.input:
			if _, err := s.handle.Writer.Write(b); err != nil {
				s.markExited()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) markExited() {
	if s.exited.CompareAndSwap(false, true) {
		close(s.done)
		sessionLog.Debug("session_exited", "id", s.ID.String())
	}
}

// Write enqueues bytes for the writer task. Returns false if the session
// has already exited.
func (s *Session) Write(b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.input <- b:
		return true
	case <-s.done:
		return false
	}
}

// HasExited reports whether the reader or writer task has observed a
// terminal condition.
func (s *Session) HasExited() bool { return s.exited.Load() }

// MillisSinceLastOutput answers the UI's Busy/Waiting/Idle derivation
// without consulting the pane directly (spec.md §4.3 "Liveness and
// status").
func (s *Session) MillisSinceLastOutput() int64 {
	s.mu.Lock()
	t := s.lastOutputTime
	s.mu.Unlock()
	if t.IsZero() {
		return 0
	}
	return time.Since(t).Milliseconds()
}

// Kill destroys the backing pane. The agent process dies; worktrees
// associated with this session may be reclaimed by the caller.
func (s *Session) Kill() error {
	s.markExited()
	return s.backend.Kill(s.handle.BackendID)
}

// Detach disables output monitoring and drops the reader, leaving the pane
// alive for a later Adopt by another instance (spec.md §4.3 "Shutdown
// policies").
func (s *Session) Detach() error {
	s.markExited()
	if closer, ok := s.handle.Reader.(io.Closer); ok {
		_ = closer.Close()
	}
	return s.backend.Detach(s.handle.BackendID)
}

// BackendID returns the mux-assigned pane identifier this session wraps.
func (s *Session) BackendID() string { return s.handle.BackendID }
