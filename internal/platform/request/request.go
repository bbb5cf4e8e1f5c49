// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package request provides utilities for extracting data from HTTP requests.

It abstracts away the underlying router's parameter extraction and common
body decoding patterns, ensuring consistent error handling and type safety.
*/
package requestutil

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wenqiu/shuhai/internal/platform/validate"
)

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - request: *http.Request
  - target: interface{} (Pointer to the destination struct)

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(request *http.Request, target interface{}) error {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
ID retrieves a named URL parameter (UUID) from the request.
*/
func ID(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

/*
QueryInt parses an integer query parameter with a fallback default.
*/
func QueryInt(request *http.Request, name string, defaultVal int) int {
	raw := request.URL.Query().Get(name)
	if raw == "" {
		return defaultVal
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultVal
	}

	return n
}

/*
QueryBool parses a boolean query parameter with a fallback default.
*/
func QueryBool(request *http.Request, name string, defaultVal bool) bool {
	raw := request.URL.Query().Get(name)
	if raw == "" {
		return defaultVal
	}

	b, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultVal
	}

	return b
}
