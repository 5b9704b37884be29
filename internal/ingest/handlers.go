package ingest

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"telenotify/internal/events"
	logx "telenotify/pkg/logx"
)

const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnsupported  = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeTooLarge     = "REQUEST_TOO_LARGE"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// APIError is the JSON error body.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type eventResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	ev, status, err := s.decodeEvent(r)
	if err != nil {
		s.m.Ingest(string(ev.Kind), status)
		code := ErrCodeBadRequest
		switch status {
		case http.StatusUnsupportedMediaType:
			code = ErrCodeUnsupported
		case http.StatusRequestEntityTooLarge:
			code = ErrCodeTooLarge
		}
		writeError(w, status, code, err.Error())
		return
	}
	if err := ev.Validate(); err != nil {
		s.m.Ingest(string(ev.Kind), http.StatusBadRequest)
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	switch s.h.Handle(ev) {
	case events.Accepted:
		s.m.Ingest(string(ev.Kind), http.StatusAccepted)
		writeJSON(w, http.StatusAccepted, eventResponse{Accepted: true})
	case events.Dropped:
		s.m.Ingest(string(ev.Kind), http.StatusAccepted)
		writeJSON(w, http.StatusAccepted, eventResponse{Accepted: false, Reason: "queue_full"})
	default:
		s.m.Ingest(string(ev.Kind), http.StatusNoContent)
		w.WriteHeader(http.StatusNoContent)
	}
}

// decodeEvent reads a JSON body or a urlencoded/multipart form. The returned
// status is only meaningful when err is non-nil.
func (s *Server) decodeEvent(r *http.Request) (events.Event, int, error) {
	var ev events.Event
	ct := r.Header.Get("Content-Type")
	mt, _, _ := mime.ParseMediaType(ct)
	if ct == "" {
		mt = "application/json"
	}

	switch mt {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			return ev, bodyStatus(err), errors.New("invalid JSON body")
		}
	case "application/x-www-form-urlencoded", "multipart/form-data":
		var err error
		if mt == "multipart/form-data" {
			err = r.ParseMultipartForm(maxBodyBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return ev, bodyStatus(err), errors.New("invalid form body")
		}
		if err := s.decoder.Decode(&ev, r.PostForm); err != nil {
			return ev, http.StatusBadRequest, errors.New("invalid form fields")
		}
	default:
		return ev, http.StatusUnsupportedMediaType, errors.New("content type must be JSON or a form")
	}
	return ev, 0, nil
}

func bodyStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func (s *Server) logRequest(r *http.Request, status int, took logx.Field) {
	s.log.Debug("ingest request",
		logx.String("method", r.Method),
		logx.String("path", r.URL.Path),
		logx.Int("status", status),
		logx.String("request_id", requestID(r)),
		took,
	)
}
