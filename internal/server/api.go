package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MrWong99/saathi/internal/observe"
	"github.com/MrWong99/saathi/internal/quiz"
	"github.com/MrWong99/saathi/pkg/memory"
	"github.com/MrWong99/saathi/pkg/types"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

type messageEnvelope struct {
	Message *memory.Record `json:"message"`
}

type messagesResponse struct {
	Messages []memory.Record `json:"messages"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	var opts []memory.ListOpt
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
		opts = append(opts, memory.WithLimit(n))
	}
	if v := r.URL.Query().Get("session"); v != "" {
		opts = append(opts, memory.WithSession(v))
	}

	recs, err := s.app.Store().List(r.Context(), opts...)
	if err != nil {
		writeError(w, r, fmt.Errorf("list messages: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: recs})
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageEnvelope
	if !decode(w, r, &req) {
		return
	}
	if req.Message == nil {
		writeError(w, r, fmt.Errorf("%w: message is required", errBadRequest))
		return
	}
	rec, err := s.app.Store().Append(r.Context(), memory.Record{
		User: req.Message.User,
		Text: req.Message.Text,
	})
	if err != nil {
		writeError(w, r, fmt.Errorf("save message: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, messageEnvelope{Message: &rec})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.app.Sessions().List()})
}

func (s *Server) handleNameMeaning(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Locale string `json:"locale"`
	}
	if !decode(w, r, &req) {
		return
	}
	locale := types.Locale(req.Locale)
	if locale == "" {
		locale = s.app.Locale()
	}
	meaning, err := quiz.NameMeaning(r.Context(), s.app.Generator(), req.Name, locale)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"meaning": meaning})
}

type quizSnapshot struct {
	Topic          string     `json:"topic"`
	Definition     string     `json:"definition"`
	Questions      []string   `json:"questions"`
	ShowDefinition bool       `json:"show_definition"`
	History        []quizTurn `json:"history"`
}

type quizTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func (s *Server) handleQuizSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.app.Tutor().Snapshot()
	out := quizSnapshot{
		Topic:          snap.Topic,
		Definition:     snap.Definition,
		Questions:      append([]string{}, snap.Questions...),
		ShowDefinition: snap.ShowDefinition,
		History:        make([]quizTurn, len(snap.History)),
	}
	for i, t := range snap.History {
		out.History[i] = quizTurn{Role: string(t.Role), Text: t.Text}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQuizDefinition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
	}
	if !decode(w, r, &req) {
		return
	}
	def, err := s.app.Tutor().Definition(r.Context(), req.Topic)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"definition": def})
}

func (s *Server) handleQuizQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := s.app.Tutor().NextQuestion(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"question": q})
}

func (s *Server) handleQuizAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answer string `json:"answer"`
	}
	if !decode(w, r, &req) {
		return
	}
	ev, err := s.app.Tutor().CheckAnswer(r.Context(), req.Answer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evaluation": ev.Text, "correct": ev.Correct})
}

// decode reads a JSON body into v. On failure it writes a 400 and returns
// false.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
		return false
	}
	return true
}

// statusFor maps err to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, quiz.ErrEmptyInput),
		errors.Is(err, memory.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, quiz.ErrNoDefinition):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case types.KindOf(err) != types.KindUnknown:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Warn("request failed", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
