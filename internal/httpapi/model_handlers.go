package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/lukasbauer/fishvoice/internal/eventlog"
	"github.com/lukasbauer/fishvoice/internal/fishaudio"
)

const maxVoiceSampleSize = 20 * 1024 * 1024 // per-file upload cap

// handleListModels returns a page of voice models.
func (r *Router) handleListModels(w http.ResponseWriter, req *http.Request) {
	params := fishaudio.ListModelsParams{Self: true}
	if v := req.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.PageSize = n
		}
	}
	if v := req.URL.Query().Get("page_number"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.PageNumber = n
		}
	}
	if v := req.URL.Query().Get("self"); v == "false" {
		params.Self = false
	}

	list, err := r.fish.ListModels(req.Context(), params)
	if err != nil {
		r.logger.Printf("models: list failed: %v", err)
		captureError(req, err, "list models")
		http.Error(w, `{"error": "failed to list models"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetModel returns one voice model.
func (r *Router) handleGetModel(w http.ResponseWriter, req *http.Request) {
	modelID := req.PathValue("id")
	if modelID == "" {
		http.Error(w, `{"error": "missing model ID"}`, http.StatusBadRequest)
		return
	}

	model, err := r.fish.GetModel(req.Context(), modelID)
	if err != nil {
		r.logger.Printf("models: get %s failed: %v", modelID, err)
		http.Error(w, `{"error": "failed to get model"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

// handleCreateModel creates a voice model from multipart-uploaded samples.
// Form fields: title, description, train_mode, enhance_audio_quality, texts
// (repeatable); files: voices (repeatable), cover_image.
func (r *Router) handleCreateModel(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(maxVoiceSampleSize); err != nil {
		http.Error(w, `{"error": "invalid multipart form"}`, http.StatusBadRequest)
		return
	}

	params := fishaudio.CreateModelParams{
		Title:               req.FormValue("title"),
		Description:         req.FormValue("description"),
		TrainMode:           req.FormValue("train_mode"),
		Texts:               req.MultipartForm.Value["texts"],
		EnhanceAudioQuality: req.FormValue("enhance_audio_quality") == "true",
	}
	if params.Title == "" {
		http.Error(w, `{"error": "title is required"}`, http.StatusBadRequest)
		return
	}

	for _, fh := range req.MultipartForm.File["voices"] {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, `{"error": "failed to read voice sample"}`, http.StatusBadRequest)
			return
		}
		sample, err := io.ReadAll(io.LimitReader(f, maxVoiceSampleSize))
		f.Close()
		if err != nil {
			http.Error(w, `{"error": "failed to read voice sample"}`, http.StatusBadRequest)
			return
		}
		params.Voices = append(params.Voices, sample)
	}
	if len(params.Voices) == 0 {
		http.Error(w, `{"error": "at least one voice sample is required"}`, http.StatusBadRequest)
		return
	}

	if fhs := req.MultipartForm.File["cover_image"]; len(fhs) > 0 {
		f, err := fhs[0].Open()
		if err == nil {
			cover, err := io.ReadAll(io.LimitReader(f, maxVoiceSampleSize))
			f.Close()
			if err == nil {
				params.CoverImage = cover
			}
		}
	}

	model, err := r.fish.CreateModel(req.Context(), params)
	if err != nil {
		r.logger.Printf("models: create failed: %v", err)
		captureError(req, err, "create model")
		http.Error(w, `{"error": "failed to create model"}`, http.StatusBadGateway)
		return
	}

	r.eventLog.LogAsync(model.ID, eventlog.EventModelCreated, map[string]any{
		"title": model.Title,
	})

	writeJSON(w, http.StatusCreated, model)
}

// handleDeleteModel deletes a voice model.
func (r *Router) handleDeleteModel(w http.ResponseWriter, req *http.Request) {
	modelID := req.PathValue("id")
	if modelID == "" {
		http.Error(w, `{"error": "missing model ID"}`, http.StatusBadRequest)
		return
	}

	if err := r.fish.DeleteModel(req.Context(), modelID); err != nil {
		r.logger.Printf("models: delete %s failed: %v", modelID, err)
		captureError(req, err, "delete model")
		http.Error(w, `{"error": "failed to delete model"}`, http.StatusBadGateway)
		return
	}

	r.eventLog.LogAsync(modelID, eventlog.EventModelDeleted, nil)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
