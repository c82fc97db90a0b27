package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	domain "github.com/pawtrait-studio/api/internal/domain"
)

const maxJSONBodyBytes = 1 << 20

// decodeJSONBody decodes a bounded JSON request body into dst. Unknown fields
// are rejected so client typos surface as 400s instead of silent no-ops.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		default:
			return errors.New("request body is not valid JSON")
		}
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// paginationFromQuery reads pageSize and pageToken query parameters.
func paginationFromQuery(r *http.Request) domain.Pagination {
	page := domain.Pagination{
		PageToken: strings.TrimSpace(r.URL.Query().Get("pageToken")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("pageSize")); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil && size > 0 {
			page.PageSize = size
		}
	}
	return page
}
