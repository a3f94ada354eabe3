package api

import (
	"net/http"

	"github.com/joescharf/digest/internal/digest"
	"github.com/joescharf/digest/internal/models"
)

type digestRequest struct {
	// Project selects a saved project; otherwise Channels are used.
	Project  string   `json:"project"`
	Channels []string `json:"channels" validate:"required_without=Project"`
	Hours    int      `json:"hours" validate:"omitempty,min=1,max=168"`
	// Keywords overrides the user's filter when present. An empty list
	// disables filtering.
	Keywords        *[]string `json:"keywords"`
	ExcludeAuthorID string    `json:"exclude_author_id"`
}

func (s *Server) requireDigests(w http.ResponseWriter) bool {
	if s.digests == nil {
		writeError(w, http.StatusServiceUnavailable, "digests are not configured: set slack.bot_token and an LLM API key")
		return false
	}
	return true
}

func (r digestRequest) toRequest(user string) digest.Request {
	req := digest.Request{User: user, Channels: r.Channels, Hours: r.Hours, ExcludeAuthorID: r.ExcludeAuthorID}
	if r.Keywords != nil {
		req.Keywords = append([]string{}, (*r.Keywords)...)
	}
	return req
}

func (s *Server) createDigest(w http.ResponseWriter, r *http.Request) {
	if !s.requireDigests(w) {
		return
	}
	var body digestRequest
	if err := s.decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}

	user := r.PathValue("user")
	var (
		res *digest.Result
		err error
	)
	if body.Project != "" {
		res, err = s.digests.ProjectDigest(r.Context(), user, body.Project, body.Hours, body.ExcludeAuthorID)
	} else {
		res, err = s.digests.ChannelDigest(r.Context(), body.toRequest(user))
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) createIssueDigest(w http.ResponseWriter, r *http.Request) {
	if !s.requireDigests(w) {
		return
	}
	var body digestRequest
	if err := s.decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	track := r.URL.Query().Get("track") != "false"
	res, err := s.digests.IssueDigest(r.Context(), body.toRequest(r.PathValue("user")), track)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type aggregateRequest struct {
	Messages map[string][]models.Message `json:"channel_messages" validate:"required,dive,dive"`
	// Keywords overrides the user's filter when present.
	Keywords *[]string `json:"keywords"`
}

// aggregate filters caller-supplied messages without touching the chat client.
func (s *Server) aggregate(w http.ResponseWriter, r *http.Request) {
	var body aggregateRequest
	if err := s.decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}

	var keywords []string
	if body.Keywords != nil {
		keywords = *body.Keywords
	} else {
		st, err := s.settings.Get(r.Context(), r.PathValue("user"))
		if err != nil {
			writeErr(w, err)
			return
		}
		keywords = st.Keywords
	}
	writeJSON(w, http.StatusOK, digest.Aggregate(body.Messages, keywords))
}
