package langserver

import (
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"strings"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lsmux/lsmux/errors"
	"github.com/lsmux/lsmux/protocol"
)

// fakeServer drives the far end of a stream handler: it reads frames the
// handler writes and sends frames back, standing in for a real child process.
type fakeServer struct {
	dec *protocol.Decoder

	mu  sync.Mutex
	out io.WriteCloser
}

func newFakePair(t *testing.T, opts ...HandlerOption) (*Handler, *fakeServer) {
	t.Helper()

	clientR, clientW := io.Pipe() // handler stdin -> server
	serverR, serverW := io.Pipe() // server -> handler stdout

	h := newStreamHandler(zaptest.NewLogger(t).Sugar(), clientW, serverR, opts...)
	srv := &fakeServer{dec: protocol.NewDecoder(clientR), out: serverW}

	t.Cleanup(func() {
		srv.close()
		clientR.Close()
	})
	return h, srv
}

// read returns the next message the handler wrote
func (s *fakeServer) read(t *testing.T) *protocol.Message {
	t.Helper()
	msg, err := s.dec.Read()
	require.NoError(t, err)
	return msg
}

func (s *fakeServer) send(t *testing.T, msg any) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NoError(t, protocol.Write(s.out, msg))
}

// sendRaw writes bytes straight to the handler's stdout stream, bypassing
// the encoder, so tests can inject broken frames
func (s *fakeServer) sendRaw(t *testing.T, raw string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.out.Write([]byte(raw))
	require.NoError(t, err)
}

func (s *fakeServer) respond(t *testing.T, req *protocol.Message, result any) {
	t.Helper()
	s.send(t, &protocol.Response{JSONRPC: protocol.Version, ID: req.ID, Result: result})
}

// close ends the server-to-handler stream, which the handler observes as
// process exit
func (s *fakeServer) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Close()
}

func TestHandlerRequestResponse(t *testing.T) {
	h, srv := newFakePair(t)

	go func() {
		req := srv.read(t)
		assert.Equal(t, protocol.KindRequest, req.Kind())
		assert.Equal(t, "workspace/symbol", req.Method)
		srv.respond(t, req, []map[string]string{{"name": "ParseConfig"}})
	}()

	var result []struct {
		Name string `json:"name"`
	}
	err := h.SendRequest(context.Background(), "workspace/symbol", map[string]string{"query": "Parse"}, &result)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "ParseConfig", result[0].Name)
}

func TestHandlerOutOfOrderResponses(t *testing.T) {
	h, srv := newFakePair(t)

	// Hold both requests, then answer them in reverse arrival order
	go func() {
		first := srv.read(t)
		second := srv.read(t)
		srv.respond(t, second, second.Method)
		srv.respond(t, first, first.Method)
	}()

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, method := range []string{"alpha/one", "beta/two"} {
		i, method := i, method
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, h.SendRequest(context.Background(), method, nil, &results[i]))
		}()
		// Keep arrival order deterministic
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, "alpha/one", results[0])
	assert.Equal(t, "beta/two", results[1])
}

func TestHandlerRequestTimeout(t *testing.T) {
	h, srv := newFakePair(t)

	go func() {
		srv.read(t) // swallow the request, never answer
	}()

	start := time.Now()
	err := h.SendRequestTimeout(context.Background(), "textDocument/hover", nil, nil, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRequestTimedOut))
	assert.Contains(t, err.Error(), "textDocument/hover")
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestHandlerContextCancellation(t *testing.T) {
	h, srv := newFakePair(t)

	go func() {
		srv.read(t)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := h.SendRequest(ctx, "textDocument/definition", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestHandlerExitFailsPendingRequests(t *testing.T) {
	h, srv := newFakePair(t)

	go func() {
		srv.read(t)
		srv.read(t)
		srv.close()
	}()

	errs := make(chan error, 2)
	for _, method := range []string{"alpha/one", "beta/two"} {
		method := method
		go func() {
			errs <- h.SendRequestTimeout(context.Background(), method, nil, nil, 5*time.Second)
		}()
	}

	// Both in-flight requests must settle as terminated, never as timed out
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrServerTerminated))
			assert.False(t, errors.Is(err, errors.ErrRequestTimedOut))
		case <-time.After(2 * time.Second):
			t.Fatal("pending request did not settle after server exit")
		}
	}

	select {
	case <-h.Exited():
	case <-time.After(time.Second):
		t.Fatal("exited channel not closed")
	}
}

func TestHandlerRequestAfterExit(t *testing.T) {
	h, srv := newFakePair(t)

	srv.close()
	<-h.Exited()

	err := h.SendRequest(context.Background(), "textDocument/hover", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServerTerminated))
}

func TestHandlerServerErrorResponse(t *testing.T) {
	h, srv := newFakePair(t)

	go func() {
		req := srv.read(t)
		srv.send(t, &protocol.Response{
			JSONRPC: protocol.Version,
			ID:      req.ID,
			Error:   &protocol.Error{Code: -32602, Message: "invalid params"},
		})
	}()

	err := h.SendRequest(context.Background(), "textDocument/references", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid params")
	assert.Contains(t, err.Error(), "-32602")
}

func TestHandlerUnhandledServerRequestGetsMethodNotFound(t *testing.T) {
	h, srv := newFakePair(t)
	_ = h

	srv.send(t, protocol.NewRequest(99, "client/unregisterCapability", nil))

	reply := srv.read(t)
	assert.Equal(t, protocol.KindResponse, reply.Kind())
	assert.Equal(t, json.RawMessage("99"), reply.ID)
	require.NotNil(t, reply.Error)
	assert.Equal(t, protocol.CodeMethodNotFound, reply.Error.Code)
	assert.Contains(t, reply.Error.Message, "client/unregisterCapability")
}

func TestHandlerServerRequestHandled(t *testing.T) {
	h, srv := newFakePair(t)

	h.OnRequest("workspace/configuration", func(params json.RawMessage) (any, error) {
		return []any{map[string]bool{"staticcheck": true}}, nil
	})

	srv.send(t, protocol.NewRequest(7, "workspace/configuration", nil))

	reply := srv.read(t)
	require.Nil(t, reply.Error)
	assert.Equal(t, json.RawMessage("7"), reply.ID)

	var cfg []map[string]bool
	require.NoError(t, json.Unmarshal(reply.Result, &cfg))
	require.Len(t, cfg, 1)
	assert.True(t, cfg[0]["staticcheck"])
}

func TestHandlerServerRequestHandlerError(t *testing.T) {
	h, srv := newFakePair(t)

	h.OnRequest("window/showMessageRequest", func(params json.RawMessage) (any, error) {
		return nil, &protocol.Error{Code: -32800, Message: "request cancelled"}
	})

	srv.send(t, protocol.NewRequest(8, "window/showMessageRequest", nil))

	reply := srv.read(t)
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32800, reply.Error.Code)
	assert.Equal(t, "request cancelled", reply.Error.Message)
}

func TestHandlerNotificationDispatch(t *testing.T) {
	h, srv := newFakePair(t)

	received := make(chan string, 1)
	h.OnNotification("window/logMessage", func(params json.RawMessage) {
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(params, &p); err == nil {
			received <- p.Message
		}
	})

	// Unregistered notifications are dropped without affecting later traffic
	srv.send(t, protocol.NewNotification("$/progress", map[string]string{"token": "x"}))
	srv.send(t, protocol.NewNotification("window/logMessage", map[string]string{"message": "indexing done"}))

	select {
	case msg := <-received:
		assert.Equal(t, "indexing done", msg)
	case <-time.After(time.Second):
		t.Fatal("notification handler was not invoked")
	}
}

func TestHandlerNotify(t *testing.T) {
	h, srv := newFakePair(t)

	require.NoError(t, h.Notify("textDocument/didOpen", map[string]string{"uri": "file:///x.go"}))

	msg := srv.read(t)
	assert.Equal(t, protocol.KindNotification, msg.Kind())
	assert.Equal(t, "textDocument/didOpen", msg.Method)
}

func TestHandlerReadinessPredicate(t *testing.T) {
	h, srv := newFakePair(t, WithReadinessPredicates(
		func(method string, params json.RawMessage) bool {
			return method == "backend/ready"
		},
	))

	select {
	case <-h.Ready():
		t.Fatal("ready resolved before the predicate matched")
	case <-time.After(30 * time.Millisecond):
	}

	srv.send(t, protocol.NewNotification("window/logMessage", nil))
	srv.send(t, protocol.NewNotification("backend/ready", nil))

	select {
	case <-h.Ready():
	case <-time.After(time.Second):
		t.Fatal("ready did not resolve after matching notification")
	}

	// The latch never regresses
	srv.send(t, protocol.NewNotification("backend/ready", nil))
	select {
	case <-h.Ready():
	default:
		t.Fatal("ready channel must stay closed")
	}
}

func TestHandlerReadyImmediateWithoutPredicates(t *testing.T) {
	h, _ := newFakePair(t)

	select {
	case <-h.Ready():
	case <-time.After(time.Second):
		t.Fatal("handler without predicates should be ready at start")
	}
}

func TestHandlerInvalidBodyRecoverable(t *testing.T) {
	h, srv := newFakePair(t)

	go func() {
		req := srv.read(t)
		// A frame with valid framing but garbage JSON must only lose itself
		srv.sendRaw(t, "Content-Length: 9\r\n\r\n{\"broken\"")
		srv.respond(t, req, "still alive")
	}()

	var result string
	require.NoError(t, h.SendRequest(context.Background(), "alpha/one", nil, &result))
	assert.Equal(t, "still alive", result)
}

func TestHandlerMalformedHeaderTerminates(t *testing.T) {
	h, srv := newFakePair(t)

	go func() {
		srv.read(t)
		srv.sendRaw(t, "Content-Length: banana\r\n\r\n")
	}()

	err := h.SendRequestTimeout(context.Background(), "alpha/one", nil, nil, 5*time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServerTerminated))

	select {
	case <-h.Exited():
	case <-time.After(time.Second):
		t.Fatal("malformed framing must abandon the stream")
	}
}

func TestHandlerStateTransitions(t *testing.T) {
	h, srv := newFakePair(t)
	assert.Equal(t, StateStarted, h.State())
	assert.Equal(t, "started", h.State().String())

	srv.close()
	<-h.Exited()
	assert.Equal(t, StateStopped, h.State())
}

func TestHandlerNotStarted(t *testing.T) {
	h := NewHandler(zaptest.NewLogger(t).Sugar(), exec.Command("true"))

	assert.Equal(t, StateCreated, h.State())
	require.Error(t, h.SendRequest(context.Background(), "alpha/one", nil, nil))
	require.Error(t, h.Notify("alpha/one", nil))
}

func TestHandlerStopKillsUnresponsiveProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	// sleep never speaks the protocol, so the graceful sequence must fall
	// through to a forced kill
	h := NewHandler(zaptest.NewLogger(t).Sugar(), exec.Command("sleep", "60"))
	require.NoError(t, h.Start())

	done := make(chan error, 1)
	go func() { done <- h.Stop(200 * time.Millisecond) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("stop did not complete")
	}

	select {
	case <-h.Exited():
	case <-time.After(time.Second):
		t.Fatal("process still running after stop")
	}
	assert.Equal(t, StateStopped, h.State())
}

func TestHandlerStderrDrainSurvivesOverlongLine(t *testing.T) {
	h := NewHandler(zaptest.NewLogger(t).Sugar(), exec.Command("true"))

	// A single line past the scanner's buffer cap aborts scanning; the loop
	// must keep draining the stream to EOF regardless
	stderr := strings.NewReader(strings.Repeat("x", 2<<20) + "\nafter the flood\n")
	h.stderrLoop(stderr)

	assert.Zero(t, stderr.Len(), "stderr not fully drained")
}

func TestHandlerStopSingleGracefulWindow(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	// sleep ignores the shutdown request, so the full graceful window is
	// consumed waiting on it; the exit wait must not be granted a second one
	h := NewHandler(zaptest.NewLogger(t).Sugar(), exec.Command("sleep", "60"))
	require.NoError(t, h.Start())

	start := time.Now()
	require.NoError(t, h.Stop(300*time.Millisecond))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 550*time.Millisecond)
}

func TestHandlerStopAfterFailedStart(t *testing.T) {
	h := NewHandler(zaptest.NewLogger(t).Sugar(), exec.Command("/nonexistent/language-server"))
	require.Error(t, h.Start())

	select {
	case <-h.Exited():
	case <-time.After(time.Second):
		t.Fatal("failed start did not mark the handler exited")
	}

	done := make(chan error, 1)
	go func() { done <- h.Stop(200 * time.Millisecond) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("stop hung after failed start")
	}
	assert.Equal(t, StateStopped, h.State())
}

func TestHandlerStopIdempotent(t *testing.T) {
	h, srv := newFakePair(t)
	srv.close()
	<-h.Exited()

	require.NoError(t, h.Stop(100*time.Millisecond))
	require.NoError(t, h.Stop(100*time.Millisecond))
}

func TestHandlerDoubleStart(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	h := NewHandler(zaptest.NewLogger(t).Sugar(), exec.Command("cat"))
	require.NoError(t, h.Start())
	defer h.Stop(200 * time.Millisecond)

	err := h.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}
