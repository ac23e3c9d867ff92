package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/annostore/internal/annotations"
	"github.com/roach88/annostore/internal/record"
)

func readBody(w http.ResponseWriter, r *http.Request) ([]record.Record, bool, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return nil, false, badRequest("read body", err)
	}
	recs, isList, err := record.DecodeMany(data)
	if err != nil {
		return nil, false, badRequest("body must be a JSON object or a list of objects", err)
	}
	return recs, isList, nil
}

// handleWrite stores one annotation or a list of annotations and responds
// with the ids written, in order.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	params, err := s.parseWriteParams(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payloads, _, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	results, err := s.engine.WriteMany(r.Context(), scopeOf(r), payloads, annotations.WriteOptions{
		IDField:     params.IDField,
		Version:     params.Version,
		Conditional: params.Conditional,
		Replace:     params.Replace,
		User:        s.user(r),
	})
	ids := make([]any, len(results))
	for i, res := range results {
		ids[i] = res.ID
	}
	if err != nil {
		s.writeErrorBody(w, r, err, errorBody{Written: ids})
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// handleFetch returns annotations by id. A single id answers with one
// object; several ids, or a history request, answer with a list.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	params, err := s.parseReadParams(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ids, err := annotations.ParseIDs(chi.URLParam(r, "ids"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	scope := scopeOf(r)

	if len(ids) == 1 && !params.Changes {
		rev, ok, err := s.engine.GetBest(r.Context(), scope, ids[0], params.Version)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !ok {
			s.writeError(w, r, &annotations.Error{
				Code:    annotations.CodeNotFound,
				Op:      "get",
				Message: "no annotation at or before version " + params.Version,
			})
			return
		}
		writeJSON(w, http.StatusOK, rev.Public())
		return
	}

	matches, err := s.engine.Fetch(r.Context(), scope, ids, annotations.ReadOptions{
		IDField: params.IDField,
		Version: params.Version,
		Changes: params.Changes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(ids) == 1 && len(matches) == 0 {
		s.writeError(w, r, &annotations.Error{Code: annotations.CodeNotFound, Op: "changes", Message: "unknown id"})
		return
	}
	writeJSON(w, http.StatusOK, render(matches, params))
}

// handleQuery runs a query object, or several ORed together with
// duplicate ids removed.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	params, err := s.parseReadParams(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	queries, _, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	wheres := make([]map[string]any, len(queries))
	for i, q := range queries {
		wheres[i] = q
	}
	merged, err := s.engine.QueryAny(r.Context(), scopeOf(r), wheres, annotations.ReadOptions{
		IDField: params.IDField,
		Version: params.Version,
		Changes: params.Changes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, render(merged, params))
}

// handleDelete removes an id with its whole history.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ids, err := annotations.ParseIDs(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(ids) != 1 {
		s.writeError(w, r, badRequest("delete takes a single id", nil))
		return
	}
	removed, err := s.engine.Delete(r.Context(), scopeOf(r), ids[0])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": removed})
}

// render shapes matches for the response: id values only, each history
// flattened in order, or the selected records.
func render(matches []annotations.Match, params readParams) []any {
	out := make([]any, 0, len(matches))
	for _, m := range matches {
		switch {
		case params.OnlyID:
			out = append(out, m.ID)
		case params.Changes:
			for _, rev := range m.Changes {
				out = append(out, rev.Public())
			}
		default:
			out = append(out, m.Revision.Public())
		}
	}
	return out
}
