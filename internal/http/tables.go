package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"linova-go/internal/services"

	"github.com/go-chi/chi/v5"
)

const maxUpsertBody = 1 << 20

// tableFor resolves the {table} route parameter and checks that owned
// tables are only reached with a signed-in caller.
func (s *Server) tableFor(w http.ResponseWriter, r *http.Request) (services.TableSpec, bool) {
	spec, err := services.LookupTable(chi.URLParam(r, "table"))
	if err != nil {
		writeServiceError(w, s.Log, "lookup table", err)
		return services.TableSpec{}, false
	}
	if spec.Owned() && CurrentUserID(r) == "" {
		WriteError(w, http.StatusUnauthorized, "Authentication failed")
		return services.TableSpec{}, false
	}
	return spec, true
}

func (s *Server) SelectTable(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.tableFor(w, r)
	if !ok {
		return
	}
	q, err := services.ParseSelectQuery(spec, r.URL.Query())
	if err != nil {
		writeServiceError(w, s.Log, "parse query", err)
		return
	}
	rows, err := services.SelectRows(s.DB, spec, q, CurrentUserID(r))
	if err != nil {
		writeServiceError(w, s.Log, "select "+spec.Name, err)
		return
	}
	WriteJSON(w, http.StatusOK, rows)
}

// UpsertTable accepts one row object or an array of rows.
func (s *Server) UpsertTable(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.tableFor(w, r)
	if !ok {
		return
	}
	rows, err := decodeRows(io.LimitReader(r.Body, maxUpsertBody))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	userID := CurrentUserID(r)
	stored := make([]services.Row, 0, len(rows))
	for _, row := range rows {
		saved, inserted, err := services.UpsertRow(s.DB, spec, row, userID)
		if err != nil {
			writeServiceError(w, s.Log, "upsert "+spec.Name, err)
			return
		}
		event := services.ChangeUpdate
		if inserted {
			event = services.ChangeInsert
		}
		s.publish(r.Context(), services.Change{Table: spec.Name, Type: event, Record: saved})
		stored = append(stored, saved)
	}
	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteJSON(w, http.StatusCreated, stored)
}

func (s *Server) DeleteTable(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.tableFor(w, r)
	if !ok {
		return
	}
	filters, err := services.ParseFilters(spec, r.URL.Query())
	if err != nil {
		writeServiceError(w, s.Log, "parse filters", err)
		return
	}
	removed, err := services.DeleteRows(s.DB, spec, filters, CurrentUserID(r))
	if err != nil {
		writeServiceError(w, s.Log, "delete "+spec.Name, err)
		return
	}
	for _, row := range removed {
		s.publish(r.Context(), services.Change{Table: spec.Name, Type: services.ChangeDelete, OldRecord: row})
	}
	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteJSON(w, http.StatusOK, removed)
}

func (s *Server) publish(ctx context.Context, change services.Change) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(context.WithoutCancel(ctx), change); err != nil {
		s.Log.Warn("publish change failed", "table", change.Table, "error", err)
	}
}

func decodeRows(body io.Reader) ([]map[string]any, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if len(raw) > 0 && raw[0] == '[' {
		var rows []map[string]any
		if err := dec.Decode(&rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, io.ErrUnexpectedEOF
	}
	return []map[string]any{row}, nil
}

func wantsRepresentation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Prefer"), "return=representation")
}
