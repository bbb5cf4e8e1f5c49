// Copyright (c) 2026 Shuhai. All rights reserved.

package quota

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wenqiu/shuhai/internal/platform/apperr"
	requestutil "github.com/wenqiu/shuhai/internal/platform/request"
	"github.com/wenqiu/shuhai/internal/platform/respond"
	"github.com/wenqiu/shuhai/internal/source"
)

// # Handler Implementation

// Handler implements the HTTP layer for quota inspection.
type Handler struct {
	ledger *Ledger
}

// NewHandler constructs a new quota [Handler].
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes attaches quota endpoints to the root API router. They sit
// under the task prefix because the budget governs download tasks.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/tasks/quota", handler.UsageAll)
	api.Get("/tasks/quota/{provider}", handler.Usage)
}

/*
GET /api/tasks/quota.

Response:
  - 200: []Usage: Today's ledger state for every provider
*/
func (handler *Handler) UsageAll(writer http.ResponseWriter, request *http.Request) {
	usages, err := handler.ledger.UsageAll(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, usages)
}

/*
GET /api/tasks/quota/{provider}.

Response:
  - 200: Usage: Today's ledger state for one provider
  - 400: Validation: Unknown provider
*/
func (handler *Handler) Usage(writer http.ResponseWriter, request *http.Request) {
	provider := source.Provider(requestutil.ID(request, "provider"))
	if !provider.Valid() {
		respond.Error(writer, request, apperr.ValidationError("Unknown provider"))
		return
	}

	usage, err := handler.ledger.Usage(request.Context(), provider)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, usage)
}
