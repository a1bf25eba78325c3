package main

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nagarikconnect/civicrag/query"
)

type handler struct {
	orch *query.Orchestrator
	log  zerolog.Logger
}

// queryResponse wraps the canonical response with a plain-text
// rendering for the narrow channels.
type queryResponse struct {
	query.Response
	Rendered string `json:"rendered,omitempty"`
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *handler) query(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	resp := h.orch.Handle(r.Context(), req)

	out := queryResponse{Response: resp}
	switch req.Channel {
	case "sms":
		out.Rendered = query.FormatForSMS(resp)
	case "voice":
		out.Rendered = query.FormatForVoice(resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
