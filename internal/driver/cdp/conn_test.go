package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/go-cmp/cmp"
)

func TestConnCallSuccess(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser(t)
	browser.results["Browser.getVersion"] = `{"product":"HeadlessChrome/130.0"}`

	conn := startConn(t, browser, nil)

	var version struct {
		Product string `json:"product"`
	}
	if err := conn.Call(context.Background(), "Browser.getVersion", nil, &version); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if version.Product != "HeadlessChrome/130.0" {
		t.Fatalf("product = %q, want HeadlessChrome/130.0", version.Product)
	}

	if err := conn.Call(context.Background(), MethodStartObserving, serviceParams{Service: "pushMessaging"}, nil); err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	requests := browser.recorded()
	if len(requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(requests))
	}
	if *requests[0].ID == *requests[1].ID {
		t.Fatalf("request ids must differ, both %d", *requests[0].ID)
	}
	if string(requests[1].Params) != `{"service":"pushMessaging"}` {
		t.Fatalf("params = %s", requests[1].Params)
	}
}

func TestConnCallRemoteError(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser(t)
	browser.failures[MethodSetRecording] = &RemoteError{Code: -32602, Message: "Invalid parameters", Data: "service"}

	conn := startConn(t, browser, nil)

	err := conn.Call(context.Background(), MethodSetRecording, setRecordingParams{ShouldRecord: true, Service: "notifications"}, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("error = %v, want *RemoteError", err)
	}
	if remote.Code != -32602 {
		t.Fatalf("code = %d, want -32602", remote.Code)
	}
	if !strings.Contains(err.Error(), MethodSetRecording) {
		t.Fatalf("error = %v, want method name", err)
	}
}

func TestConnDeliversNotificationsBeforeResponse(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser(t)
	browser.pushes[MethodStartObserving] = []string{
		`{"method":"BackgroundService.recordingStateChanged","params":{"isRecording":true,"service":"pushMessaging"}}`,
		`not-json`,
		`{"id":99}`,
		`{"method":"BackgroundService.backgroundServiceEventReceived","params":{"backgroundServiceEvent":{"service":"pushMessaging","instanceId":"1"}}}`,
	}

	collector := &notificationCollector{}
	conn := startConn(t, browser, collector.handle)

	if err := conn.Call(context.Background(), MethodStartObserving, serviceParams{Service: "pushMessaging"}, nil); err != nil {
		t.Fatalf("call failed: %v", err)
	}

	want := []string{EventRecordingStateChanged, EventBackgroundServiceEventReceived}
	if diff := cmp.Diff(want, collector.methods()); diff != "" {
		t.Fatalf("notification methods mismatch (-want +got):\n%s", diff)
	}
}

func TestConnSessionFilter(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser(t)
	browser.pushes[MethodClearEvents] = []string{
		`{"method":"BackgroundService.recordingStateChanged","params":{"isRecording":true,"service":"backgroundSync"},"sessionId":"other"}`,
		`{"method":"BackgroundService.recordingStateChanged","params":{"isRecording":false,"service":"backgroundSync"},"sessionId":"page-session"}`,
	}

	collector := &notificationCollector{}
	conn := startConn(t, browser, collector.handle, WithSessionID("page-session"))

	if err := conn.Call(context.Background(), MethodClearEvents, serviceParams{Service: "backgroundSync"}, nil); err != nil {
		t.Fatalf("call failed: %v", err)
	}

	got := collector.all()
	if len(got) != 1 || got[0].SessionID != "page-session" {
		t.Fatalf("notifications = %+v, want only page-session", got)
	}

	requests := browser.recorded()
	if len(requests) != 1 || requests[0].SessionID != "page-session" {
		t.Fatalf("requests = %+v, want session scoped request", requests)
	}
}

func TestConnCallAfterClose(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser(t)
	conn := startConn(t, browser, nil)

	_ = conn.Close()
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done was not closed")
	}

	err := conn.Call(context.Background(), MethodStopObserving, serviceParams{Service: "backgroundFetch"}, nil)
	if !errors.Is(err, ErrConnClosed) {
		t.Fatalf("error = %v, want %v", err, ErrConnClosed)
	}
}

func TestConnCallHonorsContext(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser(t)
	browser.silent[MethodStartObserving] = true
	conn := startConn(t, browser, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := conn.Call(ctx, MethodStartObserving, serviceParams{Service: "paymentHandler"}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestConnConsumeRejectsSecondLoop(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser(t)
	conn := startConn(t, browser, nil)

	// A completed call proves the first loop is running.
	if err := conn.Call(context.Background(), MethodClearEvents, serviceParams{Service: "backgroundFetch"}, nil); err != nil {
		t.Fatalf("call failed: %v", err)
	}

	err := conn.Consume(context.Background(), func(context.Context, Notification) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "already consuming") {
		t.Fatalf("error = %v, want already consuming", err)
	}
	if err := conn.Consume(context.Background(), nil); err == nil {
		t.Fatal("expected nil handler to fail")
	}
}

// fakeBrowser answers DevTools requests over a test websocket server.
type fakeBrowser struct {
	server *httptest.Server

	// results, failures, pushes and silent are configured before the first dial.
	results  map[string]string
	failures map[string]*RemoteError
	pushes   map[string][]string
	silent   map[string]bool

	mu       sync.Mutex
	requests []message
}

func newFakeBrowser(t *testing.T) *fakeBrowser {
	t.Helper()

	browser := &fakeBrowser{
		results:  make(map[string]string),
		failures: make(map[string]*RemoteError),
		pushes:   make(map[string][]string),
		silent:   make(map[string]bool),
	}
	browser.server = httptest.NewServer(http.HandlerFunc(browser.serve))
	t.Cleanup(browser.server.Close)

	return browser
}

func (b *fakeBrowser) endpoint() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/devtools/page/TEST"
}

func (b *fakeBrowser) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer ws.CloseNow()

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}

		var request message
		if err := json.Unmarshal(data, &request); err != nil || request.ID == nil {
			continue
		}
		b.mu.Lock()
		b.requests = append(b.requests, request)
		b.mu.Unlock()

		for _, push := range b.pushes[request.Method] {
			if err := ws.Write(ctx, websocket.MessageText, []byte(push)); err != nil {
				return
			}
		}
		if b.silent[request.Method] {
			continue
		}

		response := message{ID: request.ID, SessionID: request.SessionID}
		if failure, ok := b.failures[request.Method]; ok {
			response.Error = failure
		} else if result, ok := b.results[request.Method]; ok {
			response.Result = json.RawMessage(result)
		} else {
			response.Result = json.RawMessage(`{}`)
		}
		payload, err := json.Marshal(response)
		if err != nil {
			return
		}
		if err := ws.Write(ctx, websocket.MessageText, payload); err != nil {
			return
		}
	}
}

func (b *fakeBrowser) recorded() []message {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]message(nil), b.requests...)
}

// startConn dials browser and runs the read loop until test cleanup.
func startConn(t *testing.T, browser *fakeBrowser, handler NotificationHandler, options ...ConnOption) *Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, browser.endpoint(), options...)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	if handler == nil {
		handler = func(context.Context, Notification) error { return nil }
	}
	consumed := make(chan error, 1)
	go func() {
		consumed <- conn.Consume(context.Background(), handler)
	}()

	t.Cleanup(func() {
		_ = conn.Close()
		select {
		case <-consumed:
		case <-time.After(5 * time.Second):
			t.Error("consume loop did not stop")
		}
	})

	return conn
}

type notificationCollector struct {
	mu            sync.Mutex
	notifications []Notification
}

func (c *notificationCollector) handle(_ context.Context, notification Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.notifications = append(c.notifications, notification)
	return nil
}

func (c *notificationCollector) all() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Notification(nil), c.notifications...)
}

func (c *notificationCollector) methods() []string {
	notifications := c.all()
	methods := make([]string, 0, len(notifications))
	for _, notification := range notifications {
		methods = append(methods, notification.Method)
	}

	return methods
}
