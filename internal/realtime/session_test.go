package realtime

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lukasbauer/fishvoice/internal/fishaudio"
)

// wsTestServer runs handler on one upgraded websocket connection and returns
// the ws:// URL to dial.
func wsTestServer(t *testing.T, handler func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, req, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)

	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// readClientEvent decodes the next msgpack event sent by the session.
func readClientEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read client event: %v", err)
	}

	var ev map[string]any
	if err := msgpack.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode client event: %v", err)
	}
	return ev
}

func sendServerEvent(t *testing.T, conn *websocket.Conn, ev any) {
	t.Helper()

	payload, err := msgpack.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal server event: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("send server event: %v", err)
	}
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}

// collectSink records audio chunks in arrival order.
type collectSink struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (s *collectSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunk := make([]byte, len(p))
	copy(chunk, p)
	s.chunks = append(s.chunks, chunk)
	return len(p), nil
}

func (s *collectSink) all() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// failSink rejects every write.
type failSink struct{}

func (failSink) Write(p []byte) (int, error) {
	return 0, errors.New("sink full")
}

func fragments(words ...string) <-chan string {
	ch := make(chan string, len(words))
	for _, w := range words {
		ch <- w
	}
	close(ch)
	return ch
}

func TestStreamSendsEventsInOrder(t *testing.T) {
	// The uplink must send start, then one text event per fragment in
	// producer order, then exactly one flush and one stop, and nothing else.
	var (
		mu       sync.Mutex
		received []map[string]any
	)

	_, url := wsTestServer(t, func(conn *websocket.Conn) {
		for {
			ev := readClientEvent(t, conn)
			mu.Lock()
			received = append(received, ev)
			mu.Unlock()
			if ev["event"] == "stop" {
				break
			}
		}
		sendServerEvent(t, conn, serverEvent{Event: "finish", Reason: "completed"})
		closeNormally(conn)
	})

	sess, err := Dial(context.Background(), Config{
		APIKey:   "test-key",
		Endpoint: url,
		Debug:    true,
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	reason, err := sess.Stream(context.Background(), fragments("Hello ", "world "), &collectSink{})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if reason != "completed" {
		t.Errorf("reason = %q, want %q", reason, "completed")
	}

	mu.Lock()
	defer mu.Unlock()

	want := []string{"start", "text", "text", "flush", "stop"}
	if len(received) != len(want) {
		t.Fatalf("received %d events, want %d: %v", len(received), len(want), received)
	}
	for i, ev := range received {
		if ev["event"] != want[i] {
			t.Errorf("event[%d] = %v, want %q", i, ev["event"], want[i])
		}
	}

	if received[1]["text"] != "Hello " {
		t.Errorf("first fragment = %v, want %q (whitespace preserved)", received[1]["text"], "Hello ")
	}
	if received[2]["text"] != "world " {
		t.Errorf("second fragment = %v, want %q", received[2]["text"], "world ")
	}

	// The start event carries the initial configuration.
	if received[0]["debug"] != true {
		t.Errorf("start event debug = %v, want true", received[0]["debug"])
	}
	if _, ok := received[0]["request"]; !ok {
		t.Error("start event missing request configuration")
	}
}

func TestStreamSkipsEmptyFragments(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)

	_, url := wsTestServer(t, func(conn *websocket.Conn) {
		for {
			ev := readClientEvent(t, conn)
			if ev["event"] == "text" {
				mu.Lock()
				texts = append(texts, ev["text"].(string))
				mu.Unlock()
			}
			if ev["event"] == "stop" {
				break
			}
		}
		sendServerEvent(t, conn, serverEvent{Event: "finish", Reason: "completed"})
		closeNormally(conn)
	})

	sess, err := Dial(context.Background(), Config{APIKey: "k", Endpoint: url})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	if _, err := sess.Stream(context.Background(), fragments("a ", "", "b "), &collectSink{}); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 2 || texts[0] != "a " || texts[1] != "b " {
		t.Errorf("text events = %v, want [a , b ]", texts)
	}
}

func TestStreamForwardsAudioInOrder(t *testing.T) {
	// Audio payloads reach the sink in receipt order; log events are
	// surfaced, not forwarded as audio.
	var logBuf bytes.Buffer
	logger := log.New(&logBuf, "", 0)

	_, url := wsTestServer(t, func(conn *websocket.Conn) {
		// Drain the uplink so the client can finish its half.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		sendServerEvent(t, conn, serverEvent{Event: "audio", Audio: []byte("AAA")})
		sendServerEvent(t, conn, serverEvent{Event: "log", Message: "buffering"})
		sendServerEvent(t, conn, serverEvent{Event: "audio", Audio: []byte("BBB")})
		sendServerEvent(t, conn, serverEvent{Event: "finish", Reason: "completed"})
		closeNormally(conn)
		time.Sleep(100 * time.Millisecond)
	})

	sess, err := Dial(context.Background(), Config{APIKey: "k", Endpoint: url, Logger: logger})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	sink := &collectSink{}
	reason, err := sess.Stream(context.Background(), fragments("hi "), sink)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if reason != "completed" {
		t.Errorf("reason = %q, want %q", reason, "completed")
	}

	chunks := sink.all()
	if len(chunks) != 2 {
		t.Fatalf("sink received %d chunks, want 2", len(chunks))
	}
	if string(chunks[0]) != "AAA" || string(chunks[1]) != "BBB" {
		t.Errorf("chunks = %q, %q; want AAA, BBB", chunks[0], chunks[1])
	}

	if !strings.Contains(logBuf.String(), "buffering") {
		t.Errorf("server log not surfaced: %q", logBuf.String())
	}
}

func TestStreamConnectionClosedBeforeFinish(t *testing.T) {
	_, url := wsTestServer(t, func(conn *websocket.Conn) {
		// Read the start event, then drop the connection without finish.
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
		conn.Close()
	})

	sess, err := Dial(context.Background(), Config{APIKey: "k", Endpoint: url})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	texts := make(chan string) // producer never finishes
	defer close(texts)

	_, err = sess.Stream(context.Background(), texts, &collectSink{})
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("err = %v, want ErrConnectionClosed", err)
	}
}

func TestStreamEventAfterFinishIsProtocolViolation(t *testing.T) {
	_, url := wsTestServer(t, func(conn *websocket.Conn) {
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		sendServerEvent(t, conn, serverEvent{Event: "finish", Reason: "completed"})
		sendServerEvent(t, conn, serverEvent{Event: "audio", Audio: []byte("late")})
		time.Sleep(100 * time.Millisecond)
	})

	sess, err := Dial(context.Background(), Config{APIKey: "k", Endpoint: url})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	sink := &collectSink{}
	reason, err := sess.Stream(context.Background(), fragments("hi "), sink)

	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
	if !protoErr.AfterFinish {
		t.Error("ProtocolError.AfterFinish = false, want true")
	}
	if reason != "completed" {
		t.Errorf("reason = %q, want %q (finish was observed)", reason, "completed")
	}
	if len(sink.all()) != 0 {
		t.Error("late audio must not reach the sink")
	}
}

func TestStreamUnrecognizedEventIsProtocolViolation(t *testing.T) {
	_, url := wsTestServer(t, func(conn *websocket.Conn) {
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		sendServerEvent(t, conn, serverEvent{Event: "telemetry"})
		time.Sleep(100 * time.Millisecond)
	})

	sess, err := Dial(context.Background(), Config{APIKey: "k", Endpoint: url})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	_, err = sess.Stream(context.Background(), fragments("hi "), &collectSink{})

	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
	if protoErr.Event != "telemetry" {
		t.Errorf("ProtocolError.Event = %q, want %q", protoErr.Event, "telemetry")
	}
	if protoErr.AfterFinish {
		t.Error("ProtocolError.AfterFinish = true, want false")
	}
}

func TestStreamFinishWithoutServerClose(t *testing.T) {
	// finish is terminal: the session must end promptly even when the server
	// never closes the connection afterwards.
	release := make(chan struct{})
	defer close(release)

	_, url := wsTestServer(t, func(conn *websocket.Conn) {
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		sendServerEvent(t, conn, serverEvent{Event: "finish", Reason: "completed"})
		<-release // hold the connection open, send nothing more
	})

	sess, err := Dial(context.Background(), Config{APIKey: "k", Endpoint: url})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	type result struct {
		reason string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		reason, err := sess.Stream(context.Background(), fragments("hi "), &collectSink{})
		done <- result{reason, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Stream failed: %v", r.err)
		}
		if r.reason != "completed" {
			t.Errorf("reason = %q, want %q", r.reason, "completed")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Stream did not return after finish on a still-open connection")
	}
}

func TestStreamCancellation(t *testing.T) {
	// Cancelling mid-session unblocks both halves and tears the session
	// down; Close stays idempotent afterwards.
	serverDone := make(chan struct{})
	_, url := wsTestServer(t, func(conn *websocket.Conn) {
		defer close(serverDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	sess, err := Dial(context.Background(), Config{APIKey: "k", Endpoint: url})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	texts := make(chan string) // infinite producer
	defer close(texts)

	errCh := make(chan error, 1)
	go func() {
		_, err := sess.Stream(ctx, texts, &collectSink{})
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stream did not return after cancellation")
	}

	select {
	case <-serverDone:
	case <-time.After(5 * time.Second):
		t.Fatal("server connection was not released")
	}

	// Double close must be a no-op.
	_ = sess.Close()
	_ = sess.Close()
}

func TestStreamSinkWriteFailure(t *testing.T) {
	_, url := wsTestServer(t, func(conn *websocket.Conn) {
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		sendServerEvent(t, conn, serverEvent{Event: "audio", Audio: []byte("AAA")})
		time.Sleep(100 * time.Millisecond)
	})

	sess, err := Dial(context.Background(), Config{APIKey: "k", Endpoint: url})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	_, err = sess.Stream(context.Background(), fragments("hi "), failSink{})
	if err == nil || !strings.Contains(err.Error(), "sink") {
		t.Errorf("err = %v, want sink write failure", err)
	}
}

func TestDialConnectionRefused(t *testing.T) {
	_, err := Dial(context.Background(), Config{
		APIKey:   "k",
		Endpoint: "ws://127.0.0.1:1", // nothing listens here
	})
	if err == nil {
		t.Fatal("Dial succeeded against a dead endpoint")
	}
}

func TestProtocolErrorMessage(t *testing.T) {
	e := &ProtocolError{Event: "audio", AfterFinish: true}
	if !strings.Contains(e.Error(), "after finish") {
		t.Errorf("Error() = %q, want mention of after finish", e.Error())
	}

	e = &ProtocolError{Event: "bogus"}
	if !strings.Contains(e.Error(), "unrecognized") {
		t.Errorf("Error() = %q, want mention of unrecognized event", e.Error())
	}
}

func TestDialSendsStartBeforeStream(t *testing.T) {
	// The start event must arrive before Stream is even called.
	first := make(chan string, 1)
	_, url := wsTestServer(t, func(conn *websocket.Conn) {
		ev := readClientEvent(t, conn)
		first <- ev["event"].(string)
		sendServerEvent(t, conn, serverEvent{Event: "finish", Reason: "completed"})
		closeNormally(conn)
	})

	sess, err := Dial(context.Background(), Config{
		APIKey:   "k",
		Endpoint: url,
		Request:  fishaudio.TTSRequest{Text: "ignored", Format: "opus"},
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	select {
	case ev := <-first:
		if ev != "start" {
			t.Errorf("first event = %q, want %q", ev, "start")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received after Dial")
	}
}
