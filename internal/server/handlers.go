package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ogulcanaydogan/aeris/pkg/account"
	"github.com/ogulcanaydogan/aeris/pkg/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// profileRequest is the PATCH body. Coordinates travel as two flat fields and
// must be given together.
type profileRequest struct {
	Email          *string  `json:"email"`
	Mode           *string  `json:"mode"`
	Age            *int     `json:"age"`
	Conditions     *string  `json:"conditions"`
	TelegramChatID *string  `json:"telegram_chat_id"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
}

func (p profileRequest) update() (model.ProfileUpdate, error) {
	u := model.ProfileUpdate{
		Email:          p.Email,
		Mode:           p.Mode,
		Age:            p.Age,
		Conditions:     p.Conditions,
		TelegramChatID: p.TelegramChatID,
	}
	switch {
	case p.Latitude != nil && p.Longitude != nil:
		u.Location = &model.Location{Lat: *p.Latitude, Lon: *p.Longitude}
	case p.Latitude != nil || p.Longitude != nil:
		return u, fmt.Errorf("%w: latitude and longitude must be set together", account.ErrInvalidInput)
	}
	return u, nil
}

type testAlertResponse struct {
	Status string `json:"status"`
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", account.ErrInvalidInput, err)
	}
	return nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg account.Registration
	if err := decode(r, &reg); err != nil {
		s.fail(w, r, err)
		return
	}

	u, err := s.accounts.Register(r.Context(), reg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	u, err := s.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.accounts.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	update, err := req.update()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	u, err := s.accounts.UpdateProfile(r.Context(), chi.URLParam(r, "username"), update)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleAlertStatus(w http.ResponseWriter, r *http.Request) {
	u, err := s.accounts.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	st, err := s.alerts.Status(r.Context(), u.ID, s.clock.Now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	u, err := s.accounts.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.alerts.SendTestAlert(r.Context(), u.ID, s.clock.Now()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testAlertResponse{Status: "sent"})
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	report, err := s.alerts.RunCycle(context.WithoutCancel(r.Context()), s.clock.Now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
