// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/vodhive/vodhive/internal/logging"
)

// envelope is the uniform response shape: data on success, an error object
// otherwise.
type envelope struct {
	Data  interface{} `json:"data,omitempty"`
	Error *apiError   `json:"error,omitempty"`
	Meta  *listMeta   `json:"meta,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// listMeta carries pagination alongside list payloads.
type listMeta struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeEnvelope(w, status, envelope{Data: data})
}

func writeList(w http.ResponseWriter, data interface{}, meta listMeta) {
	writeEnvelope(w, http.StatusOK, envelope{Data: data, Meta: &meta})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeEnvelope(w, status, envelope{Error: &apiError{Code: code, Message: message}})
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

// decodeJSON reads a request body into dst with a 1 MiB cap.
func decodeJSON(r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(dst)
}
