package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/annostore/internal/metadata"
)

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.registry.Fields(r.Context(), scopeOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.registry.Versions(r.Context(), scopeOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// handlePublishVersions replaces the version-tag registry of a scope.
func (s *Server) handlePublishVersions(w http.ResponseWriter, r *http.Request) {
	var v metadata.Versions
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		s.writeError(w, r, badRequest("versions body", err))
		return
	}
	if err := s.check(v); err != nil {
		s.writeError(w, r, err)
		return
	}
	scope := scopeOf(r)
	if err := scope.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.registry.PublishVersions(r.Context(), scope, v); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v.TagToUUID)
}

func (s *Server) handleHeadTag(w http.ResponseWriter, r *http.Request) {
	tag, err := s.registry.HeadTag(r.Context(), scopeOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

func (s *Server) handleHeadUUID(w http.ResponseWriter, r *http.Request) {
	uuid, err := s.registry.HeadUUID(r.Context(), scopeOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uuid)
}

func (s *Server) handleTagToUUID(w http.ResponseWriter, r *http.Request) {
	uuid, err := s.registry.TagToUUID(r.Context(), scopeOf(r), chi.URLParam(r, "tag"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uuid)
}

func (s *Server) handleUUIDToTag(w http.ResponseWriter, r *http.Request) {
	tag, err := s.registry.UUIDToTag(r.Context(), scopeOf(r), chi.URLParam(r, "uuid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}
