package backend

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// NotificationHandler handles an incoming notification from the backend.
// The payload is the raw JSON of the "params" member.
type NotificationHandler func(method string, params gjson.Result)

// Transport frames JSON messages over a backend process's stdio using
// Content-Length headers. Requests carry a unique id; responses are
// routed back to the waiting caller, notifications to a registered
// handler.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer

	mu       sync.Mutex
	pending  map[string]chan gjson.Result
	handlers map[string]NotificationHandler

	closed atomic.Bool
	done   chan struct{}
}

// NewTransport creates a transport over the given connection, typically
// the stdin/stdout pipes of the backend process.
func NewTransport(r io.Reader, w io.Writer, c io.Closer) *Transport {
	return &Transport{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		closer:   c,
		pending:  make(map[string]chan gjson.Result),
		handlers: make(map[string]NotificationHandler),
		done:     make(chan struct{}),
	}
}

// Start begins reading messages from the connection.
func (t *Transport) Start(ctx context.Context) {
	go t.readLoop(ctx)
}

// Close closes the transport and releases resources.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	close(t.done)

	// Clear the pending map rather than closing the channels; callers
	// blocked on them unblock via t.done.
	t.mu.Lock()
	t.pending = make(map[string]chan gjson.Result)
	t.mu.Unlock()

	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// IsClosed returns true if the transport has been closed.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// OnNotification registers a handler for backend notifications.
// The method "*" matches notifications with no specific handler.
func (t *Transport) OnNotification(method string, handler NotificationHandler) {
	t.mu.Lock()
	t.handlers[method] = handler
	t.mu.Unlock()
}

// Call sends a request and waits for the matching response, returning
// the raw "result" member.
func (t *Transport) Call(ctx context.Context, method string, params map[string]any) (gjson.Result, error) {
	if t.closed.Load() {
		return gjson.Result{}, ErrShutdown
	}

	id := uuid.NewString()
	ch := make(chan gjson.Result, 1)

	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	msg, err := buildMessage(id, method, params)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build request: %w", err)
	}
	if err := t.send(msg); err != nil {
		return gjson.Result{}, fmt.Errorf("send request: %w", err)
	}

	select {
	case <-ctx.Done():
		return gjson.Result{}, ctx.Err()
	case <-t.done:
		return gjson.Result{}, ErrShutdown
	case resp := <-ch:
		if errMsg := resp.Get("error.message"); errMsg.Exists() {
			return gjson.Result{}, fmt.Errorf("%w: %s", ErrBackendUnavailable, errMsg.String())
		}
		return resp.Get("result"), nil
	}
}

// buildMessage assembles one request body.
func buildMessage(id, method string, params map[string]any) (string, error) {
	msg, err := sjson.Set("{}", "id", id)
	if err != nil {
		return "", err
	}
	msg, err = sjson.Set(msg, "method", method)
	if err != nil {
		return "", err
	}
	for key, value := range params {
		msg, err = sjson.Set(msg, "params."+key, value)
		if err != nil {
			return "", err
		}
	}
	return msg, nil
}

// send writes a message with a Content-Length header.
func (t *Transport) send(body string) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := io.WriteString(t.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := io.WriteString(t.writer, body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// readLoop reads messages from the connection until closed.
func (t *Transport) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		default:
		}

		body, err := t.readMessage()
		if err != nil {
			if t.closed.Load() || err == io.EOF || err == io.ErrClosedPipe {
				return
			}
			continue
		}

		t.dispatch(body)
	}
}

// readMessage reads a single framed message body.
func (t *Transport) readMessage() ([]byte, error) {
	var contentLength int
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), "content-length:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				if length, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
					contentLength = length
				}
			}
		}
	}

	if contentLength == 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// dispatch routes one message: responses carry an id, notifications a
// method.
func (t *Transport) dispatch(body []byte) {
	msg := gjson.ParseBytes(body)

	if id := msg.Get("id"); id.Exists() && (msg.Get("result").Exists() || msg.Get("error").Exists()) {
		t.handleResponse(id.String(), msg)
		return
	}

	if method := msg.Get("method"); method.Exists() {
		t.handleNotification(method.String(), msg.Get("params"))
	}
}

// handleResponse routes a response to its waiting caller.
func (t *Transport) handleResponse(id string, msg gjson.Result) {
	if t.closed.Load() {
		return
	}

	t.mu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if ok {
		select {
		case ch <- msg:
		default:
		}
	}
}

// handleNotification routes a notification to its handler.
func (t *Transport) handleNotification(method string, params gjson.Result) {
	t.mu.Lock()
	handler, ok := t.handlers[method]
	if !ok {
		handler, ok = t.handlers["*"]
	}
	t.mu.Unlock()

	if ok && handler != nil {
		// Run off the read loop so a slow handler cannot stall reads.
		go handler(method, params)
	}
}
