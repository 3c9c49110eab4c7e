package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/frontdesk-ai/frontdesk/internal/agent"
	"github.com/frontdesk-ai/frontdesk/internal/clinic"
	"github.com/frontdesk-ai/frontdesk/internal/config"
	"github.com/frontdesk-ai/frontdesk/internal/observability"
	"github.com/frontdesk-ai/frontdesk/internal/protocol"
	"github.com/frontdesk-ai/frontdesk/internal/session"
	"github.com/frontdesk-ai/frontdesk/internal/speech"
)

// maxTranscribeBytes caps the audio accepted by the one-shot transcription
// endpoint. 4 MiB is over two minutes of 16 kHz PCM16.
const maxTranscribeBytes = 4 << 20

// CallRunner drives one voice call over a pair of message channels.
type CallRunner interface {
	RunCall(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error
}

type Server struct {
	cfg          config.Config
	sessions     *session.Store
	agent        *agent.Agent
	calls        CallRunner
	stt          speech.Transcriber
	catalog      *clinic.Catalog
	reservations clinic.ReservationStore
	metrics      *observability.Metrics
	upgrader     websocket.Upgrader
}

func New(
	cfg config.Config,
	sessions *session.Store,
	a *agent.Agent,
	calls CallRunner,
	stt speech.Transcriber,
	catalog *clinic.Catalog,
	reservations clinic.ReservationStore,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		cfg:          cfg,
		sessions:     sessions,
		agent:        a,
		calls:        calls,
		stt:          stt,
		catalog:      catalog,
		reservations: reservations,
		metrics:      metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browser websocket connections must come from a known origin,
				// otherwise any website could drive a caller's mic session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				for _, allowed := range cfg.AllowedOrigins {
					if strings.EqualFold(origin, allowed) {
						return true
					}
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/session", s.handleCreateSession)
	r.Post("/v1/session/{id}/end", s.handleEndSession)
	r.Post("/v1/chat", s.handleChat)
	r.Post("/v1/transcribe", s.handleTranscribe)
	r.Get("/v1/services", s.handleListServices)
	r.Post("/v1/reservations", s.handleCreateReservation)
	r.Get("/v1/reservations", s.handleListReservations)
	r.Get("/v1/voice/ws", s.handleVoiceWS)

	if s.cfg.Debug {
		r.Get("/debug/sessions", s.handleDebugSessions)
		r.Get("/debug/sessions/{id}", s.handleDebugSession)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"stt_provider": s.stt.Provider(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"services": s.catalog.Len(),
	})
}

type createSessionResponse struct {
	SessionID       string    `json:"session_id"`
	CreatedAt       time.Time `json:"created_at"`
	Greeting        string    `json:"greeting"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.Create()
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()

	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:       sess.ID,
		CreatedAt:       sess.CreatedAt,
		Greeting:        s.agent.Greeting(),
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	_ = s.sessions.Delete(id)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	Success   bool   `json:"success"`
	EndCall   bool   `json:"end_call"`
}

// handleChat runs one text-only conversational turn, bypassing audio. The
// browser console and integration tests talk to the agent through this.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id and text are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ProviderTimeout)
	defer cancel()

	reply, err := s.agent.Process(ctx, req.SessionID, req.Text)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "turn_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, chatResponse{
		SessionID: req.SessionID,
		Response:  reply,
		Success:   true,
		EndCall:   s.agent.ShouldEndCall(req.Text),
	})
}

type transcribeResponse struct {
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
}

// handleTranscribe accepts a raw PCM16LE body and returns its transcript.
// Empty or unrecognizable audio is success=false, not an error.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))

	pcm, err := io.ReadAll(io.LimitReader(r.Body, maxTranscribeBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_audio", err.Error())
		return
	}
	defer r.Body.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ProviderTimeout)
	defer cancel()

	text, err := s.stt.Transcribe(ctx, pcm)
	if err != nil {
		respondError(w, http.StatusBadGateway, "transcription_failed", err.Error())
		return
	}

	resp := transcribeResponse{
		SessionID: sessionID,
		Text:      text,
		Success:   strings.TrimSpace(text) != "",
	}
	if !resp.Success {
		resp.Message = "no speech recognized"
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "services": s.catalog.Services()})
}

type createReservationRequest struct {
	ServiceID   string `json:"service_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	PatientName string `json:"patient_name"`
	PatientDOB  string `json:"patient_dob"`
}

type createReservationResponse struct {
	Success       bool               `json:"success"`
	Message       string             `json:"message"`
	ReservationID string             `json:"reservation_id"`
	Reservation   clinic.Reservation `json:"reservation"`
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ServiceID) == "" || strings.TrimSpace(req.Date) == "" || strings.TrimSpace(req.Time) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "service_id, date and time are required")
		return
	}
	if _, ok := s.catalog.Lookup(req.ServiceID); !ok {
		respondError(w, http.StatusBadRequest, "unknown_service", "service_id does not match any offered service")
		return
	}

	created, err := s.reservations.Create(r.Context(), clinic.Reservation{
		ServiceID:   req.ServiceID,
		Date:        req.Date,
		Time:        req.Time,
		PatientName: req.PatientName,
		PatientDOB:  req.PatientDOB,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "reservation_failed", err.Error())
		return
	}
	s.metrics.Reservations.Inc()
	respondJSON(w, http.StatusCreated, createReservationResponse{
		Success:       true,
		Message:       "reservation created",
		ReservationID: created.ID,
		Reservation:   created,
	})
}

func (s *Server) handleListReservations(w http.ResponseWriter, r *http.Request) {
	reservations, err := s.reservations.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "reservation_list_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reservations": reservations})
}

func (s *Server) handleDebugSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"active":   s.sessions.ActiveCount(),
		"sessions": s.sessions.List(),
	})
}

func (s *Server) handleDebugSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleVoiceWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if s.calls == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "call pipeline not configured")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		_ = s.calls.RunCall(ctx, sess, inbound, outbound)
		cancel()
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := protocol.TypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop if the outbound
				// queue is saturated.
			}
			continue
		}

		if t, ok := protocol.TypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()

	// Connection close ends the session. The pipeline already deletes on
	// farewell; this covers plain disconnects.
	if err := s.sessions.Delete(sessionID); err == nil {
		s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
