package needleapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"stitchcore/docs/schema/openapi"
	"stitchcore/internal/core"
	"stitchcore/internal/design"
	"stitchcore/pkg/domain"
)

// maxDesignBytes caps design description uploads.
const maxDesignBytes = 16 << 20

// Handler provides HTTP access to design sessions, slot operations, and
// loading sheet exports.
type Handler struct {
	Service *core.Service
	Exports ExportScheduler
}

// NewHandler constructs an engine HTTP handler.
func NewHandler(service *core.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "engine service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/health":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	case path == "/api/formats":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleFormats(w)
	case path == "/api/openapi.yaml":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(openapi.Spec())
	case path == "/api/designs":
		switch r.Method {
		case http.MethodPost:
			h.handleDesignCreate(w, r)
		case http.MethodGet:
			h.handleDesignList(w)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case strings.HasPrefix(path, "/api/exports/"):
		if h.Exports == nil {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleExportGet(w, strings.TrimPrefix(path, "/api/exports/"))
	case strings.HasPrefix(path, "/api/designs/"):
		h.handleDesign(w, r, strings.TrimPrefix(path, "/api/designs/"))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleFormats(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"needle_count":   core.NeedleCount,
		"export_formats": ExportFormats(),
		"description": map[string]any{
			"required": []string{"file_info", "colors"},
			"optional": []string{"preview", "needle_assignment"},
		},
	})
}

func (h *Handler) handleDesignCreate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDesignBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read design description: "+err.Error())
		return
	}
	doc, warnings, err := design.Decode(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Designs whose parser left out the content hash still get cached state:
	// derive the key from the uploaded payload.
	if doc.FileInfo.Hash8 == "" {
		doc.FileInfo.Hash8 = design.ContentHash8(raw)
	}

	session, _, err := h.Service.LoadDesign(r.Context(), doc)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	payload := map[string]any{
		"session_id": session.ID,
		"design":     session.Design,
		"colors":     session.Colors,
		"slots":      session.Slots,
		"status":     fmt.Sprintf("loaded %s with %d colors", session.Design.Filename, len(session.Colors)),
	}
	if len(warnings) > 0 {
		payload["warnings"] = warnings
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (h *Handler) handleDesignList(w http.ResponseWriter) {
	sessions := h.Service.Sessions()
	summaries := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, map[string]any{
			"session_id":   session.ID,
			"filename":     session.Design.Filename,
			"color_count":  len(session.Colors),
			"stitch_count": session.Design.StitchCount,
			"created_at":   session.CreatedAt,
			"updated_at":   session.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"designs": summaries})
}

func (h *Handler) handleDesign(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	if remainder == "" || len(segments) > 2 {
		http.NotFound(w, r)
		return
	}
	id := segments[0]

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.handleDesignGet(w, id)
		case http.MethodDelete:
			h.handleDesignDelete(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	action := segments[1]
	switch action {
	case "slots", "colors", "preview":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
	case "swap", "clear", "assign":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
	case "exports":
	default:
		writeError(w, http.StatusNotFound, "design endpoint not found")
		return
	}

	switch action {
	case "slots":
		slots, err := h.Service.Slots(id)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
	case "colors":
		colors, err := h.Service.Colors(id)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"colors": colors})
	case "preview":
		payload, err := h.Service.Preview(id)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	case "swap":
		h.handleSwap(w, r, id)
	case "clear":
		h.handleClear(w, r, id)
	case "assign":
		h.handleAssign(w, r, id)
	case "exports":
		h.handleDesignExports(w, r, id)
	}
}

func (h *Handler) handleDesignGet(w http.ResponseWriter, id string) {
	session, err := h.Service.GetSession(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"design":     session.Design,
		"slots":      session.Slots,
		"colors":     session.Colors,
	})
}

func (h *Handler) handleDesignDelete(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.Service.DeleteSession(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted " + id})
}

const emptyBodySentinel = "EOF"

type swapRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (h *Handler) handleSwap(w http.ResponseWriter, r *http.Request, id string) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid swap request payload")
		return
	}
	swap, _, err := h.Service.Swap(r.Context(), id, req.From, req.To)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"swap":   swap,
		"status": swap.Describe(),
	})
}

type clearRequest struct {
	Index int `json:"index"`
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request, id string) {
	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid clear request payload")
		return
	}
	status, _, err := h.Service.Clear(r.Context(), id, req.Index)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

type assignRequest struct {
	Index int    `json:"index"`
	Code  string `json:"code"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request, id string) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid assign request payload")
		return
	}
	status, _, err := h.Service.Assign(r.Context(), id, req.Index, req.Code)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

type exportRequest struct {
	Format      string   `json:"format"`
	Formats     []string `json:"formats"`
	RequestedBy string   `json:"requested_by"`
}

func (h *Handler) handleDesignExports(w http.ResponseWriter, r *http.Request, id string) {
	if h.Exports == nil {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		// Listing requires the session to exist, otherwise unknown ids would
		// read as empty lists.
		if _, err := h.Service.GetSession(id); err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"exports": h.Exports.ListExports(id)})
	case http.MethodPost:
		h.handleExportCreate(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request, id string) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}

	names := req.Formats
	if len(names) == 0 && strings.TrimSpace(req.Format) != "" {
		names = []string{req.Format}
	}
	formats := make([]ExportFormat, 0, len(names))
	for _, name := range names {
		format, ok := parseFormat(name)
		if !ok {
			writeError(w, http.StatusBadRequest, "unsupported export format")
			return
		}
		formats = append(formats, format)
	}

	record, err := h.Exports.EnqueueExport(r.Context(), ExportInput{
		SessionID:   id,
		Formats:     formats,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		var notFound core.ErrNotFound
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func (h *Handler) handleExportGet(w http.ResponseWriter, id string) {
	if id == "" {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	record, ok := h.Exports.GetExport(id)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var notFound core.ErrNotFound
	var malformed design.MalformedInputError
	var outOfRange domain.IndexOutOfRangeError
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &malformed) || errors.As(err, &outOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
