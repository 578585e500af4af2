// ABOUTME: Operator endpoints for member bootstrap, token issuance, and stats
// ABOUTME: Gated on the static admin token, separate from member JWTs

package server

import (
	"net/http"
	"time"

	"github.com/hearthlabs/hearth/internal/auth"
	"github.com/hearthlabs/hearth/internal/members"
)

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListMembers(r.Context(), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"members": len(list),
	})
}

func (s *Server) handleAdminListMembers(w http.ResponseWriter, r *http.Request) {
	list, err := s.members.List(r.Context(), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]memberView, 0, len(list))
	for _, m := range list {
		views = append(views, toMemberView(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": views})
}

func (s *Server) handleAdminCreateMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle      string `json:"handle"`
		DisplayName string `json:"display_name"`
		JobTitle    string `json:"job_title"`
		Company     string `json:"company"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := s.members.Register(r.Context(), members.RegisterRequest{
		Handle:      req.Handle,
		DisplayName: req.DisplayName,
		JobTitle:    req.JobTitle,
		Company:     req.Company,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberView(m))
}

// handleAdminIssueToken mints a member JWT. Requires the verifier to also be
// a generator (the HS256 verifier is).
func (s *Server) handleAdminIssueToken(w http.ResponseWriter, r *http.Request) {
	generator, ok := s.verifier.(*auth.JWTVerifier)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "token issuance not supported"})
		return
	}

	var req struct {
		MemberID  string `json:"member_id"`
		ExpiresIn string `json:"expires_in"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := s.store.GetMember(r.Context(), req.MemberID)
	if err != nil {
		writeError(w, err)
		return
	}

	expiresIn := 30 * 24 * time.Hour
	if req.ExpiresIn != "" {
		expiresIn, err = time.ParseDuration(req.ExpiresIn)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid expires_in"})
			return
		}
	}

	token, err := generator.Generate(m.ID, m.Handle, expiresIn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}
