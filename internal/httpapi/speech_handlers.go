package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/lukasbauer/fishvoice/internal/costs"
	"github.com/lukasbauer/fishvoice/internal/eventlog"
	"github.com/lukasbauer/fishvoice/internal/fishaudio"
	"github.com/lukasbauer/fishvoice/internal/store"
)

const maxASRAudioSize = 50 * 1024 * 1024 // 50MB upload cap

// audioContentType maps an output format to its response content type.
func audioContentType(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "pcm":
		return "audio/L16"
	case "opus":
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}

type ttsRequestBody struct {
	Text        string  `json:"text"`
	ReferenceID string  `json:"reference_id,omitempty"`
	Format      string  `json:"format,omitempty"`
	Latency     string  `json:"latency,omitempty"`
	Normalize   *bool   `json:"normalize,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// handleTTS synthesizes text and streams the audio back as it arrives.
func (r *Router) handleTTS(w http.ResponseWriter, req *http.Request) {
	var body ttsRequestBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if body.Text == "" {
		http.Error(w, `{"error": "text is required"}`, http.StatusBadRequest)
		return
	}

	ttsReq := fishaudio.NewTTSRequest(body.Text)
	ttsReq.ReferenceID = body.ReferenceID
	if ttsReq.ReferenceID == "" {
		ttsReq.ReferenceID = r.cfg.TTSReferenceID
	}
	if body.Format != "" {
		ttsReq.Format = body.Format
	} else if r.cfg.TTSFormat != "" {
		ttsReq.Format = r.cfg.TTSFormat
	}
	if body.Latency != "" {
		ttsReq.Latency = body.Latency
	} else if r.cfg.TTSLatency != "" {
		ttsReq.Latency = r.cfg.TTSLatency
	}
	if r.cfg.TTSChunkLength > 0 {
		ttsReq.ChunkLength = r.cfg.TTSChunkLength
	}
	if body.Normalize != nil {
		ttsReq.Normalize = *body.Normalize
	}
	ttsReq.Temperature = body.Temperature
	ttsReq.TopP = body.TopP

	started := time.Now()
	chunks, err := r.fish.SynthesizeStream(req.Context(), ttsReq)
	if err != nil {
		r.logger.Printf("tts: synthesis failed: %v", err)
		captureError(req, err, "tts synthesis")
		http.Error(w, `{"error": "synthesis failed"}`, http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", audioContentType(ttsReq.Format))
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	audioBytes := 0
	for chunk := range chunks {
		n, err := w.Write(chunk)
		audioBytes += n
		if err != nil {
			// Client went away; the context cancellation stops the stream.
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	r.recordUsage(store.SpeechSession{
		Kind:        store.KindTTS,
		ReferenceID: optional(ttsReq.ReferenceID),
		TextBytes:   len(body.Text),
		AudioBytes:  audioBytes,
		DurationMs:  int(time.Since(started).Milliseconds()),
		CostCents: costs.CalculateUsageCosts(costs.UsageMetrics{
			TTSTextBytes: len(body.Text),
		}).TotalCostCents,
	}, eventlog.EventTTSCompleted, map[string]any{
		"text_bytes":  len(body.Text),
		"audio_bytes": audioBytes,
	})
}

// handleASR transcribes the uploaded audio. The request body is the raw
// audio; language comes from the query string.
func (r *Router) handleASR(w http.ResponseWriter, req *http.Request) {
	audio, err := io.ReadAll(io.LimitReader(req.Body, maxASRAudioSize+1))
	if err != nil {
		http.Error(w, `{"error": "failed to read audio"}`, http.StatusBadRequest)
		return
	}
	if len(audio) == 0 {
		http.Error(w, `{"error": "audio body is required"}`, http.StatusBadRequest)
		return
	}
	if len(audio) > maxASRAudioSize {
		http.Error(w, `{"error": "audio too large"}`, http.StatusRequestEntityTooLarge)
		return
	}

	ignoreTimestamps := true
	if v := req.URL.Query().Get("timestamps"); v == "true" {
		ignoreTimestamps = false
	}

	started := time.Now()
	result, err := r.fish.Transcribe(req.Context(), fishaudio.ASRRequest{
		Audio:            audio,
		Language:         req.URL.Query().Get("language"),
		IgnoreTimestamps: ignoreTimestamps,
	})
	if err != nil {
		r.logger.Printf("asr: transcription failed: %v", err)
		captureError(req, err, "asr transcription")
		http.Error(w, `{"error": "transcription failed"}`, http.StatusBadGateway)
		return
	}

	r.recordUsage(store.SpeechSession{
		Kind:       store.KindASR,
		AudioBytes: len(audio),
		DurationMs: int(time.Since(started).Milliseconds()),
		CostCents: costs.CalculateUsageCosts(costs.UsageMetrics{
			ASRSeconds: result.Duration,
		}).TotalCostCents,
	}, eventlog.EventASRCompleted, map[string]any{
		"audio_bytes":    len(audio),
		"audio_duration": result.Duration,
	})

	writeJSON(w, http.StatusOK, result)
}

// handleGetCredits returns the account's API credit balance.
func (r *Router) handleGetCredits(w http.ResponseWriter, req *http.Request) {
	credit, err := r.fish.APICredit(req.Context())
	if err != nil {
		r.logger.Printf("credits: lookup failed: %v", err)
		captureError(req, err, "credit lookup")
		http.Error(w, `{"error": "failed to fetch credits"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, credit)
}

// handleGetUsage returns recent sessions and aggregate stats from the ledger.
func (r *Router) handleGetUsage(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		http.Error(w, `{"error": "usage ledger not configured"}`, http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if l := req.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	since := time.Now().Add(-24 * time.Hour)
	if s := req.URL.Query().Get("since"); s != "" {
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			since = parsed
		}
	}

	sessions, err := r.store.ListSessions(req.Context(), limit)
	if err != nil {
		r.logger.Printf("usage: failed to list sessions: %v", err)
		captureError(req, err, "list sessions")
		http.Error(w, `{"error": "failed to list sessions"}`, http.StatusInternalServerError)
		return
	}

	stats, err := r.store.GetUsageStats(req.Context(), since)
	if err != nil {
		r.logger.Printf("usage: failed to get stats: %v", err)
		captureError(req, err, "usage stats")
		http.Error(w, `{"error": "failed to get stats"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"stats":    stats,
		"since":    since.Format(time.RFC3339),
	})
}

// handleGetSessionEvents returns the event log for one recorded session,
// oldest first.
func (r *Router) handleGetSessionEvents(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		http.Error(w, `{"error": "usage ledger not configured"}`, http.StatusServiceUnavailable)
		return
	}

	sessionID := req.PathValue("id")
	if sessionID == "" {
		http.Error(w, `{"error": "missing session ID"}`, http.StatusBadRequest)
		return
	}

	limit := 0 // store default
	if l := req.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	events, err := r.store.ListSessionEvents(req.Context(), sessionID, limit)
	if err != nil {
		r.logger.Printf("usage: failed to list session events: %v", err)
		captureError(req, err, "list session events")
		http.Error(w, `{"error": "failed to list session events"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"events":     events,
	})
}

// recordUsage writes a ledger row and a session event. Best-effort: failures
// are logged, never surfaced to the API caller.
func (r *Router) recordUsage(sess store.SpeechSession, eventType eventlog.EventType, data map[string]any) {
	if r.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := r.store.InsertSession(ctx, sess)
	if err != nil {
		r.logger.Printf("usage: failed to record session: %v", err)
		return
	}
	r.eventLog.LogAsync(id, eventType, data)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
