package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"isamples-modelserver/internal/taxonomy"
)

const maxStreamMessageSize = 4 << 20

// StreamRequest is one prediction request on /stream. Records are sent for
// opencontext and sesar, input for smithsonian.
type StreamRequest struct {
	ID           json.RawMessage     `json:"id,omitempty"`
	Collection   taxonomy.Collection `json:"collection"`
	SourceRecord map[string]any      `json:"source_record,omitempty"`
	Input        []string            `json:"input,omitempty"`
	Type         taxonomy.ModelType  `json:"type"`
}

// StreamResponse answers one StreamRequest. Exactly one of Results, Label
// and Error is set.
type StreamResponse struct {
	ID      json.RawMessage             `json:"id,omitempty"`
	Results []taxonomy.PredictionResult `json:"results,omitempty"`
	Label   *string                     `json:"label,omitempty"`
	Error   *StreamError                `json:"error,omitempty"`
}

// StreamError carries the status and body the HTTP endpoints would have
// returned for the same request.
type StreamError struct {
	Status    int    `json:"status"`
	Exception string `json:"exception,omitempty"`
	Message   string `json:"message"`
}

// handleStream answers prediction requests over a WebSocket, one response
// per text frame, in order.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxStreamMessageSize)

	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	ctx := r.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Ctx(ctx).Warn().Err(err).Msg("prediction stream closed unexpectedly")
			}
			return
		}
		if msgType != websocket.TextMessage {
			s.metrics.StreamDiscardedInc()
			continue
		}

		var req StreamRequest
		var resp StreamResponse
		if err := decodeMessage(data, &req); err != nil {
			s.metrics.StreamDiscardedInc()
			resp.Error = streamError(invalidRequest("Unable to parse stream message: " + err.Error()))
		} else {
			resp = s.answer(r, req)
		}

		if err := conn.WriteJSON(resp); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("failed to write prediction stream response")
			return
		}
	}
}

func decodeMessage(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func (s *Server) answer(r *http.Request, req StreamRequest) StreamResponse {
	resp := StreamResponse{ID: req.ID}
	route := "/stream/" + string(req.Collection)

	if req.Collection == taxonomy.CollectionSmithsonian {
		label, err := s.predictFeature(r.Context(), req.Type, req.Input)
		if err != nil {
			s.logError(r.Context(), route, err)
			resp.Error = streamError(err)
			return resp
		}
		resp.Label = &label
		return resp
	}

	results, err := s.predictRecord(r.Context(), req.Collection, req.Type, req.SourceRecord)
	if err != nil {
		s.logError(r.Context(), route, err)
		resp.Error = streamError(err)
		return resp
	}
	resp.Results = results
	return resp
}

func streamError(err error) *StreamError {
	e := translateError(err)
	return &StreamError{Status: e.status, Exception: e.exception, Message: e.message}
}
