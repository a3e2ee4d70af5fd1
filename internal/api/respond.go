package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/models"
)

type ctxKey int

const projectKey ctxKey = iota

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{
		"error": message,
	})
}

// writeError maps err onto its status code. Server-side failures are logged
// and keep their detail out of the body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("%s %s: %v", r.Method, r.URL.Path, err)
		jsonError(w, status, "internal server error")
		return
	}
	jsonError(w, status, err.Error())
}

// decode reads a JSON body into v. An empty body is an error only when
// required is set.
func decode(r *http.Request, v interface{}, required bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		if required {
			return apperr.Validation("request body is required")
		}
		return nil
	default:
		return apperr.Validation("malformed request body: %v", err)
	}
}

// projectCtx resolves {projectID} so every nested route answers 404 for an
// unknown project.
func (s *Server) projectCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.svc.Projects.Get(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), projectKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func projectFrom(r *http.Request) models.Project {
	p, _ := r.Context().Value(projectKey).(models.Project)
	return p
}
