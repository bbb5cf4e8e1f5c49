// Copyright (c) 2026 Shuhai. All rights reserved.

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wenqiu/shuhai/internal/platform/constants"
	"github.com/wenqiu/shuhai/internal/platform/ctxutil"
	requestutil "github.com/wenqiu/shuhai/internal/platform/request"
	"github.com/wenqiu/shuhai/internal/platform/respond"
	"github.com/wenqiu/shuhai/internal/platform/validate"
)

// # Handler Implementation

// Handler implements the password gate HTTP endpoints.
type Handler struct {
	service *Service
	secure  bool // Secure flag on the auth cookie; off in development
}

// NewHandler constructs a new auth [Handler].
func NewHandler(service *Service, secureCookies bool) *Handler {
	return &Handler{service: service, secure: secureCookies}
}

// RegisterRoutes attaches the auth endpoints to the API router.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Post("/auth/login", handler.Login)
	api.Post("/auth/logout", handler.Logout)
	api.Get("/auth/status", handler.StatusCheck)
}

type loginRequest struct {
	Password string `json:"password"`
}

/*
POST /api/auth/login.

Description: Verifies the application password and sets the signed
auth_token cookie.

Request:
  - body: loginRequest

Response:
  - 200: Session expiry
  - 401: Unauthorized: Wrong password
  - 409: Conflict: Auth is disabled on this deployment
*/
func (handler *Handler) Login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required("password", input.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.service.Login(request.Context(), input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.AuthCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		Secure:   handler.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	respond.OK(writer, session)
}

/*
POST /api/auth/logout.

Description: Revokes the Redis session and clears the cookie. Idempotent.

Response:
  - 204: Session terminated
*/
func (handler *Handler) Logout(writer http.ResponseWriter, request *http.Request) {
	if claims := ctxutil.GetSession(request.Context()); claims != nil {
		if err := handler.service.Logout(request.Context(), claims.SessionID); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.AuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   handler.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	respond.NoContent(writer)
}

/*
GET /api/auth/status.

Description: Reports whether the gate is active and whether this request
carries a live session. The endpoint sits behind the auth middleware, so
reaching it with auth enabled implies an authenticated caller.

Response:
  - 200: Status
*/
func (handler *Handler) StatusCheck(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, Status{
		Enabled:       handler.service.Enabled(),
		Authenticated: ctxutil.GetSession(request.Context()) != nil,
	})
}
