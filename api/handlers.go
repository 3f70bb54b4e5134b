package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	nodex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/nodes"
	statex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/state"
	"github.com/tanpawarit/Chative-Realty-Call-Agent/api/transcript"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	callID := strings.TrimSpace(req.CallID)
	if callID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "call_id is required"})
		return
	}

	if text := strings.TrimSpace(req.Transcript); text != "" {
		s.publish(r.Context(), transcript.Fragment{
			CallID: callID,
			Text:   text,
			Source: "webhook",
			At:     time.Now().UTC(),
		})
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.turnTimeout)
	defer cancel()

	reply, err := s.calls.HandleTurn(ctx, callID, req.Transcript)
	if err != nil {
		if errors.Is(err, statex.ErrInvalidCall) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "call_id is required"})
			return
		}
		log.Error().Err(err).Str("call_id", callID).Msg("webhook turn failed")
		reply.Content = nodex.ApologyReply
	}

	responseID := req.ResponseID
	if responseID <= 0 {
		responseID = 1
	}
	writeJSON(w, http.StatusOK, WebhookResponse{
		ResponseID:      responseID,
		Content:         reply.Content,
		ContentComplete: true,
		EndCall:         false,
	})
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(mux.Vars(r)["call_id"])

	var req EndCallRequest
	if r.ContentLength != 0 {
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}

	if err := s.calls.EndCall(r.Context(), callID, req.Outcome); err != nil {
		if errors.Is(err, statex.ErrInvalidCall) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "call_id is required"})
			return
		}
		log.Error().Err(err).Str("call_id", callID).Msg("end call failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended", "call_id": callID})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["call_id"]

	st, err := s.calls.Snapshot(r.Context(), callID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, st)
	case errors.Is(err, statex.ErrStateNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "call not found"})
	case errors.Is(err, statex.ErrInvalidCall):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "call_id is required"})
	default:
		log.Error().Err(err).Str("call_id", callID).Msg("call snapshot failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) handleTranscriptIngest(w http.ResponseWriter, r *http.Request) {
	transcript.ServeIngest(w, r, mux.Vars(r)["call_id"], transcript.Publishers{s.hub, s.publisher})
}

func (s *Server) handleTranscriptSubscribe(w http.ResponseWriter, r *http.Request) {
	transcript.ServeSubscribe(w, r, mux.Vars(r)["call_id"], s.hub)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// publish never blocks the turn.
func (s *Server) publish(ctx context.Context, f transcript.Fragment) {
	if s.hub != nil {
		s.hub.Publish(ctx, f)
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, f)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response failed")
	}
}
