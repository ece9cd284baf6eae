// Package langserver supervises language-server child processes and exposes
// one uniform request/notification API over their standard streams.
package langserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lsmux/lsmux/errors"
	"github.com/lsmux/lsmux/protocol"
)

// State tracks the supervisor lifecycle. Transitions are monotonic:
// Created -> Started -> Stopping -> Stopped.
type State int32

const (
	StateCreated State = iota
	StateStarted
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// NotificationHandler handles one incoming notification from the server
type NotificationHandler func(params json.RawMessage)

// RequestHandler handles one incoming server-initiated request. Returning a
// *protocol.Error preserves its code on the wire; any other error is wrapped
// as an internal error.
type RequestHandler func(params json.RawMessage) (any, error)

// outcome is delivered exactly once per pending request: either the matched
// response or a terminal error
type outcome struct {
	msg *protocol.Message
	err error
}

// Handler owns one language-server child process end to end: it writes
// framed requests and notifications, pumps the child's stdout through the
// wire decoder, correlates responses to pending requests by id, routes
// server-initiated traffic to registered callbacks, and tears the process
// down gracefully or forcibly.
type Handler struct {
	logger         *zap.SugaredLogger
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	defaultTimeout time.Duration

	writeMu sync.Mutex
	nextID  atomic.Int64
	state   atomic.Int32

	mu            sync.Mutex
	terminated    bool
	pending       map[int64]chan outcome
	notifHandlers map[string]NotificationHandler
	reqHandlers   map[string]RequestHandler

	ready *readiness

	exited   chan struct{}
	exitOnce sync.Once
	exitErr  error

	stopOnce sync.Once
	stopErr  error
}

// HandlerOption customizes a Handler
type HandlerOption func(*Handler)

// WithDefaultTimeout sets the supervisor-wide default request timeout
func WithDefaultTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) { h.defaultTimeout = d }
}

// WithReadinessPredicates registers the backend's readiness predicates.
// With none registered the handler reports ready immediately on start.
func WithReadinessPredicates(predicates ...ReadyPredicate) HandlerOption {
	return func(h *Handler) { h.ready = newReadiness(predicates) }
}

// NewHandler creates a supervisor for the given (not yet started) command
func NewHandler(logger *zap.SugaredLogger, cmd *exec.Cmd, opts ...HandlerOption) *Handler {
	h := &Handler{
		logger:         logger,
		cmd:            cmd,
		defaultTimeout: 30 * time.Second,
		pending:        make(map[int64]chan outcome),
		notifHandlers:  make(map[string]NotificationHandler),
		reqHandlers:    make(map[string]RequestHandler),
		exited:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.ready == nil {
		h.ready = newReadiness(nil)
	}
	return h
}

// newStreamHandler wires a handler directly over byte streams with no child
// process. Test seam; the dispatch path is identical to a spawned server.
func newStreamHandler(logger *zap.SugaredLogger, stdin io.WriteCloser, stdout io.Reader, opts ...HandlerOption) *Handler {
	h := NewHandler(logger, nil, opts...)
	h.stdin = stdin
	h.state.Store(int32(StateStarted))
	if h.ready.immediate() {
		h.ready.resolve()
	}
	go h.readLoop(stdout)
	return h
}

// Start spawns the child process and begins dispatching its output
func (h *Handler) Start() (err error) {
	if !h.state.CompareAndSwap(int32(StateCreated), int32(StateStarted)) {
		return errors.Newf("handler already started (state %s)", h.State())
	}
	// A failed spawn still counts as an exit: without this, Stop would wait
	// forever on a process that never existed.
	defer func() {
		if err != nil {
			h.markExited(err)
		}
	}()

	stdin, err := h.cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "failed to create stdin pipe")
	}
	stdout, err := h.cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to create stdout pipe")
	}
	stderr, err := h.cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "failed to create stderr pipe")
	}

	applyLaunchPolicy(h.cmd)

	if err := h.cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s", h.cmd.Path)
	}
	h.stdin = stdin

	h.logger.Infow("Language server started",
		"command", h.cmd.Path,
		"pid", h.cmd.Process.Pid,
	)

	go h.readLoop(stdout)
	go h.stderrLoop(stderr)
	go func() {
		err := h.cmd.Wait()
		h.markExited(err)
	}()

	if h.ready.immediate() {
		h.ready.resolve()
	}
	return nil
}

// State returns the current lifecycle state
func (h *Handler) State() State {
	return State(h.state.Load())
}

// Ready returns a channel closed once the backend signals readiness. The
// initialize handshake itself may be sent before this resolves; semantic
// requests should wait for it.
func (h *Handler) Ready() <-chan struct{} {
	return h.ready.Ready()
}

// Exited returns a channel closed when the child process has exited,
// voluntarily or not
func (h *Handler) Exited() <-chan struct{} {
	return h.exited
}

// OnNotification registers a handler for a server-initiated notification
// method. Notifications with no handler are dropped silently; servers send
// many a client may ignore.
func (h *Handler) OnNotification(method string, fn NotificationHandler) {
	h.mu.Lock()
	h.notifHandlers[method] = fn
	h.mu.Unlock()
}

// OnRequest registers a handler for a server-initiated request method.
// Incoming requests with no handler receive a MethodNotFound error response.
func (h *Handler) OnRequest(method string, fn RequestHandler) {
	h.mu.Lock()
	h.reqHandlers[method] = fn
	h.mu.Unlock()
}

// SendRequest writes a request and suspends the caller until the matching
// response arrives, the default timeout elapses, or the server terminates.
// A non-nil result receives the unmarshalled response payload.
func (h *Handler) SendRequest(ctx context.Context, method string, params, result any) error {
	return h.SendRequestTimeout(ctx, method, params, result, h.defaultTimeout)
}

// SendRequestTimeout is SendRequest with a caller-specified timeout
func (h *Handler) SendRequestTimeout(ctx context.Context, method string, params, result any, timeout time.Duration) error {
	if h.State() == StateCreated {
		return errors.New("handler not started")
	}

	id := h.nextID.Add(1)
	ch := make(chan outcome, 1)

	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		return errors.Wrapf(errors.ErrServerTerminated, "method %s", method)
	}
	h.pending[id] = ch
	h.mu.Unlock()

	unregister := func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}

	if err := h.write(protocol.NewRequest(id, method, params)); err != nil {
		unregister()
		return errors.Wrapf(err, "failed to send request %s (id %d)", method, id)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		if out.err != nil {
			return out.err
		}
		return decodeResponse(out.msg, method, result)
	case <-timer.C:
		unregister()
		return errors.Wrapf(errors.ErrRequestTimedOut, "method %s (id %d) after %s", method, id, timeout)
	case <-ctx.Done():
		unregister()
		return errors.Wrapf(ctx.Err(), "request %s (id %d)", method, id)
	}
}

func decodeResponse(msg *protocol.Message, method string, result any) error {
	if msg.Error != nil {
		return errors.Newf("server error %d on method %s: %s", msg.Error.Code, method, msg.Error.Message)
	}
	if result != nil && len(msg.Result) > 0 {
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return errors.Wrapf(err, "failed to unmarshal response for method %s", method)
		}
	}
	return nil
}

// Notify writes a notification without registering any pending entry
func (h *Handler) Notify(method string, params any) error {
	if h.State() == StateCreated {
		return errors.New("handler not started")
	}
	return h.write(protocol.NewNotification(method, params))
}

// write serializes access to the child's stdin so concurrent callers cannot
// interleave frames
func (h *Handler) write(msg any) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.stdin == nil {
		return errors.Wrap(errors.ErrServerTerminated, "stdin closed")
	}
	return protocol.Write(h.stdin, msg)
}

// readLoop pumps decoded child output and dispatches it. It is the only
// reader of the stream; request callers park on their id's channel instead
// of contending here.
func (h *Handler) readLoop(stdout io.Reader) {
	dec := protocol.NewDecoder(stdout)
	for {
		msg, err := dec.Read()
		if err != nil {
			switch {
			case err == io.EOF:
				// Clean end of stream; the wait goroutine (or this call in
				// stream mode) settles pending requests.
			case errors.Is(err, protocol.ErrInvalidBody):
				// Only this message is lost; framing is still aligned
				h.logger.Warnw("Discarding unparseable message body", "error", err)
				continue
			case errors.Is(err, errors.ErrMalformedHeader):
				h.logger.Errorw("Malformed framing, abandoning stream", "error", err)
			default:
				if h.State() < StateStopping {
					h.logger.Warnw("Stream read failed", "error", err)
				}
			}
			h.markExited(err)
			return
		}
		h.dispatch(msg)
	}
}

func (h *Handler) dispatch(msg *protocol.Message) {
	switch msg.Kind() {
	case protocol.KindResponse:
		h.dispatchResponse(msg)
	case protocol.KindNotification:
		h.dispatchNotification(msg)
	case protocol.KindRequest:
		h.dispatchRequest(msg)
	default:
		h.logger.Debugw("Dropping message with neither id nor method")
	}
}

func (h *Handler) dispatchResponse(msg *protocol.Message) {
	id, ok := msg.ResponseID()
	if !ok {
		h.logger.Debugw("Dropping response with non-integer id", "id", string(msg.ID))
		return
	}

	h.mu.Lock()
	ch, found := h.pending[id]
	if found {
		delete(h.pending, id)
	}
	h.mu.Unlock()

	if !found {
		// Timed out or never ours; servers may answer late
		h.logger.Debugw("Dropping response with no pending request", "id", id)
		return
	}
	ch <- outcome{msg: msg}
}

func (h *Handler) dispatchNotification(msg *protocol.Message) {
	h.ready.observe(msg.Method, msg.Params)

	h.mu.Lock()
	fn := h.notifHandlers[msg.Method]
	h.mu.Unlock()

	if fn == nil {
		return
	}
	// Handlers run off the read loop so a slow one cannot stall dispatch
	go fn(msg.Params)
}

func (h *Handler) dispatchRequest(msg *protocol.Message) {
	h.mu.Lock()
	fn := h.reqHandlers[msg.Method]
	h.mu.Unlock()

	go func() {
		resp := &protocol.Response{JSONRPC: protocol.Version, ID: msg.ID}

		if fn == nil {
			resp.Error = &protocol.Error{
				Code:    protocol.CodeMethodNotFound,
				Message: "method not found: " + msg.Method,
			}
		} else if result, err := fn(msg.Params); err != nil {
			var perr *protocol.Error
			if errors.As(err, &perr) {
				resp.Error = perr
			} else {
				resp.Error = &protocol.Error{
					Code:    protocol.CodeInternalError,
					Message: err.Error(),
				}
			}
		} else {
			resp.Result = result
		}

		if err := h.write(resp); err != nil {
			h.logger.Warnw("Failed to respond to server request",
				"method", msg.Method,
				"error", err,
			)
		}
	}()
}

// stderrLoop drains the child's stderr so the process cannot block on a full
// pipe; servers routinely chat there
func (h *Handler) stderrLoop(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			h.logger.Debugw("Server stderr", "line", line)
		}
	}
	// A scan failure (an overlong line, typically) must not stop the drain
	if err := scanner.Err(); err != nil {
		h.logger.Debugw("Server stderr scan failed, draining raw", "error", err)
		_, _ = io.Copy(io.Discard, stderr)
	}
}

// markExited records the child's exit exactly once and fails every still
// pending request with ErrServerTerminated
func (h *Handler) markExited(cause error) {
	h.exitOnce.Do(func() {
		h.exitErr = cause
		h.state.Store(int32(StateStopped))

		h.mu.Lock()
		h.terminated = true
		orphaned := h.pending
		h.pending = make(map[int64]chan outcome)
		h.mu.Unlock()

		for id, ch := range orphaned {
			err := errors.Wrapf(errors.ErrServerTerminated, "request id %d", id)
			if cause != nil && cause != io.EOF {
				err = errors.WithDetailf(err, "server exit: %v", cause)
			}
			ch <- outcome{err: err}
		}

		close(h.exited)

		if len(orphaned) > 0 {
			h.logger.Warnw("Server exited with requests pending",
				"pending", len(orphaned),
				"cause", cause,
			)
		}
	})
}

// Stop tears the child down: a graceful shutdown request, then an exit
// notification, then a forced kill if the process outlives the timeout.
// Idempotent; the second call is a no-op returning the first call's result.
// All stream listeners and the pending map are released on every exit path.
func (h *Handler) Stop(timeout time.Duration) error {
	h.stopOnce.Do(func() {
		h.stopErr = h.stop(timeout)
	})
	return h.stopErr
}

func (h *Handler) stop(timeout time.Duration) error {
	select {
	case <-h.exited:
		h.release()
		return nil
	default:
	}

	h.state.Store(int32(StateStopping))

	// One graceful window for the whole sequence; whatever the shutdown
	// round-trip consumes is not granted again to the exit wait.
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Graceful sequence per the protocol: shutdown request, exit notification
	if err := h.SendRequestTimeout(ctx, "shutdown", nil, nil, timeout); err != nil {
		h.logger.Debugw("Shutdown request failed, continuing teardown", "error", err)
	}
	if err := h.Notify("exit", nil); err != nil {
		h.logger.Debugw("Exit notification failed, continuing teardown", "error", err)
	}

	h.closeStdin()

	select {
	case <-h.exited:
		h.release()
		return nil
	case <-ctx.Done():
	}

	// The process outlived the graceful window; escalate
	if h.cmd != nil && h.cmd.Process != nil {
		pid := h.cmd.Process.Pid
		h.logger.Warnw("Forcing language server termination", "pid", pid)
		if err := killTree(pid); err != nil {
			h.logger.Warnw("Process tree kill failed, killing process directly",
				"pid", pid,
				"error", err,
			)
			if killErr := h.cmd.Process.Kill(); killErr != nil {
				h.release()
				return errors.Wrapf(killErr, "failed to kill server process (pid %d)", pid)
			}
		}
	}

	<-h.exited
	h.release()
	return nil
}

func (h *Handler) closeStdin() {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if h.stdin != nil {
		h.stdin.Close()
		h.stdin = nil
	}
}

// release drops handler registrations and closes remaining streams so a
// stopped handler holds no resources
func (h *Handler) release() {
	h.closeStdin()
	h.state.Store(int32(StateStopped))

	h.mu.Lock()
	h.notifHandlers = make(map[string]NotificationHandler)
	h.reqHandlers = make(map[string]RequestHandler)
	h.mu.Unlock()
}
