package response

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON encodes v with the given status. Job bodies carry tenant data,
// so responses are never cached by intermediaries.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteUnavailable writes a 503 telling the client when to retry.
func WriteUnavailable(w http.ResponseWriter, message string, retryAfter time.Duration) {
	secs := max(int(retryAfter/time.Second), 1)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteError(w, http.StatusServiceUnavailable, message)
}

// PaginatedResponse is one page of a job listing. NextCursor is the token
// to pass back as ?cursor= and is omitted on the last page.
type PaginatedResponse struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func WritePaginated(w http.ResponseWriter, status int, items any, nextCursor string, hasMore bool) {
	if !hasMore {
		nextCursor = ""
	}
	WriteJSON(w, status, PaginatedResponse{Items: items, NextCursor: nextCursor, HasMore: hasMore})
}
