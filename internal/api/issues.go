package api

import (
	"net/http"
	"time"

	"github.com/joescharf/digest/internal/models"
)

type createIssueRequest struct {
	Text      string               `json:"text" validate:"required"`
	Channel   string               `json:"channel" validate:"required"`
	Author    string               `json:"author" validate:"required"`
	MessageTS string               `json:"message_ts"`
	Priority  models.IssuePriority `json:"priority" validate:"omitempty,oneof=critical high medium low"`
}

type scanRequest struct {
	Messages []models.Message `json:"messages" validate:"required"`
}

type scanError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type scanResponse struct {
	Created []*models.Issue `json:"created"`
	Errors  []scanError     `json:"errors"`
	Skipped int             `json:"skipped"`
}

type statusRequest struct {
	Status models.IssueStatus `json:"status" validate:"required"`
	Actor  string             `json:"actor"`
}

type linkRequest struct {
	Text      string    `json:"text" validate:"required"`
	Channel   string    `json:"channel" validate:"required"`
	Author    string    `json:"author" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
	MessageTS string    `json:"message_ts"`
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.IssueFilter{
		Status:   models.IssueStatus(q.Get("status")),
		Priority: models.IssuePriority(q.Get("priority")),
		Tag:      q.Get("tag"),
		Channel:  q.Get("channel"),
	}
	issues, err := s.tracker.List(r.Context(), r.PathValue("user"), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if err := s.decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	msg := models.Message{
		Text:      req.Text,
		Channel:   req.Channel,
		Author:    req.Author,
		Timestamp: time.Now().UTC(),
		MessageTS: req.MessageTS,
	}
	issue, err := s.tracker.Create(r.Context(), r.PathValue("user"), msg, req.Priority)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

func (s *Server) scanMessages(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := s.decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	res, err := s.tracker.Scan(r.Context(), r.PathValue("user"), req.Messages)
	if err != nil {
		writeErr(w, err)
		return
	}

	resp := scanResponse{Created: res.Created, Errors: []scanError{}, Skipped: res.Skipped}
	if resp.Created == nil {
		resp.Created = []*models.Issue{}
	}
	for _, e := range res.Errors {
		resp.Errors = append(resp.Errors, scanError{Index: e.Index, Error: e.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) issueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.tracker.Stats(r.Context(), r.PathValue("user"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) searchIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.tracker.Search(r.Context(), r.PathValue("user"), r.URL.Query().Get("q"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.tracker.Get(r.Context(), r.PathValue("user"), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.Delete(r.Context(), r.PathValue("user"), r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) transitionIssue(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := s.decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	issue, err := s.tracker.Transition(r.Context(), r.PathValue("user"), r.PathValue("id"), req.Status, req.Actor)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) linkMessage(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := s.decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	msg := models.Message{
		Text:      req.Text,
		Channel:   req.Channel,
		Author:    req.Author,
		Timestamp: req.Timestamp,
		MessageTS: req.MessageTS,
	}
	issue, err := s.tracker.LinkMessage(r.Context(), r.PathValue("user"), r.PathValue("id"), msg)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}
