package api

import (
	"net/http"

	"github.com/joescharf/digest/internal/models"
)

type projectRequest struct {
	Name     string   `json:"name" validate:"required"`
	Channels []string `json:"channels" validate:"required,min=1"`
	Keywords []string `json:"keywords"`
}

// projectPatch updates only the fields present in the body.
type projectPatch struct {
	Channels *[]string `json:"channels"`
	Keywords *[]string `json:"keywords"`
	Active   *bool     `json:"active"`
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.projects.List(r.Context(), r.PathValue("user"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if list == nil {
		list = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := s.decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	p, err := s.projects.Create(r.Context(), r.PathValue("user"), req.Name, req.Channels, req.Keywords)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.Get(r.Context(), r.PathValue("user"), r.PathValue("name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	user, name := r.PathValue("user"), r.PathValue("name")
	var patch projectPatch
	if err := s.decode(r, &patch); err != nil {
		writeErr(w, err)
		return
	}

	ctx := r.Context()
	p, err := s.projects.Get(ctx, user, name)
	if err != nil {
		writeErr(w, err)
		return
	}
	if patch.Channels != nil {
		if p, err = s.projects.SetChannels(ctx, user, name, *patch.Channels); err != nil {
			writeErr(w, err)
			return
		}
	}
	if patch.Keywords != nil {
		if p, err = s.projects.SetKeywords(ctx, user, name, *patch.Keywords); err != nil {
			writeErr(w, err)
			return
		}
	}
	if patch.Active != nil {
		if *patch.Active {
			p, err = s.projects.Activate(ctx, user, name)
		} else {
			p, err = s.projects.Deactivate(ctx, user, name)
		}
		if err != nil {
			writeErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.Delete(r.Context(), r.PathValue("user"), r.PathValue("name")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
