package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lukasbauer/fishvoice/internal/costs"
	"github.com/lukasbauer/fishvoice/internal/eventlog"
	"github.com/lukasbauer/fishvoice/internal/fishaudio"
	"github.com/lukasbauer/fishvoice/internal/realtime"
	"github.com/lukasbauer/fishvoice/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveClientMessage is one JSON frame from the websocket client.
// "text" carries a fragment; "stop" marks the client's text as complete.
type liveClientMessage struct {
	Event string `json:"event"`
	Text  string `json:"text,omitempty"`
}

// liveServerMessage is a JSON control frame to the client. Audio is sent
// separately as binary frames.
type liveServerMessage struct {
	Event  string `json:"event"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// wsSink forwards audio chunks to the client as binary frames.
type wsSink struct {
	conn  *websocket.Conn
	bytes atomic.Int64
}

func (s *wsSink) Write(chunk []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return 0, err
	}
	s.bytes.Add(int64(len(chunk)))
	return len(chunk), nil
}

// handleLiveWS bridges a client websocket to a live synthesis session:
// JSON text fragments in, binary audio frames out, a JSON finish frame at
// the end. Voice overrides come from query params (reference_id, format,
// latency).
func (r *Router) handleLiveWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("live: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ttsReq := fishaudio.NewTTSRequest("")
	ttsReq.ReferenceID = r.cfg.TTSReferenceID
	if v := req.URL.Query().Get("reference_id"); v != "" {
		ttsReq.ReferenceID = v
	}
	ttsReq.Format = "opus"
	if v := req.URL.Query().Get("format"); v != "" {
		ttsReq.Format = v
	}
	ttsReq.Latency = "balanced"
	if v := req.URL.Query().Get("latency"); v != "" {
		ttsReq.Latency = v
	}

	sess, err := realtime.Dial(req.Context(), realtime.Config{
		APIKey:   r.cfg.FishAPIKey,
		Endpoint: r.cfg.FishLiveEndpoint,
		Model:    r.cfg.FishModel,
		Request:  ttsReq,
		Logger:   r.logger,
	})
	if err != nil {
		r.logger.Printf("live: dial failed: %v", err)
		captureError(req, err, "live dial")
		_ = conn.WriteJSON(liveServerMessage{Event: "error", Error: "failed to reach synthesis service"})
		return
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	texts := make(chan string)
	var textBytes atomic.Int64

	// Client read loop: the uplink producer. A dropped client cancels the
	// whole session.
	go func() {
		for {
			var msg liveClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				return
			}
			switch msg.Event {
			case "text":
				if msg.Text == "" {
					continue
				}
				textBytes.Add(int64(len(msg.Text)))
				select {
				case texts <- msg.Text:
				case <-ctx.Done():
					return
				}
			case "stop":
				close(texts)
				return
			}
		}
	}()

	sink := &wsSink{conn: conn}
	started := time.Now()
	reason, err := sess.Stream(ctx, texts, sink)

	sent := int(textBytes.Load())
	if err != nil {
		r.logger.Printf("live: session ended with error: %v", err)
		captureError(req, err, "live session")
		_ = conn.WriteJSON(liveServerMessage{Event: "error", Error: err.Error()})
		r.recordUsage(store.SpeechSession{
			Kind:        store.KindLive,
			ReferenceID: optional(ttsReq.ReferenceID),
			TextBytes:   sent,
			AudioBytes:  int(sink.bytes.Load()),
			DurationMs:  int(time.Since(started).Milliseconds()),
		}, eventlog.EventLiveError, map[string]any{"error": err.Error()})
		return
	}

	_ = conn.WriteJSON(liveServerMessage{Event: "finish", Reason: reason})
	r.recordUsage(store.SpeechSession{
		Kind:         store.KindLive,
		ReferenceID:  optional(ttsReq.ReferenceID),
		TextBytes:    sent,
		AudioBytes:   int(sink.bytes.Load()),
		DurationMs:   int(time.Since(started).Milliseconds()),
		FinishReason: optional(reason),
		CostCents: costs.CalculateUsageCosts(costs.UsageMetrics{
			TTSTextBytes: sent,
		}).TotalCostCents,
	}, eventlog.EventLiveFinished, map[string]any{"reason": reason})
}
