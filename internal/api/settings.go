package api

import "net/http"

// settingsPatch updates only the fields present in the body.
type settingsPatch struct {
	Prompt       *string   `json:"custom_prompt"`
	Keywords     *[]string `json:"keywords"`
	DefaultHours *int      `json:"default_hours"`
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings.Get(r.Context(), r.PathValue("user"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := s.decode(r, &patch); err != nil {
		writeErr(w, err)
		return
	}

	ctx, user := r.Context(), r.PathValue("user")
	st, err := s.settings.Get(ctx, user)
	if err != nil {
		writeErr(w, err)
		return
	}
	// Hours first so an invalid value leaves everything untouched.
	if patch.DefaultHours != nil {
		if st, err = s.settings.SetHours(ctx, user, *patch.DefaultHours); err != nil {
			writeErr(w, err)
			return
		}
	}
	if patch.Prompt != nil {
		if st, err = s.settings.SetPrompt(ctx, user, *patch.Prompt); err != nil {
			writeErr(w, err)
			return
		}
	}
	if patch.Keywords != nil {
		if st, err = s.settings.SetKeywords(ctx, user, *patch.Keywords); err != nil {
			writeErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) resetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings.Reset(r.Context(), r.PathValue("user"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
