package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"findr/api/internal/auth"
	"findr/api/internal/authpw"
	"findr/api/internal/feed"
	"findr/api/internal/rbac"
	"findr/api/internal/search"
	"findr/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)

	r.Get("/api/health", s.handleHealth)
	r.Head("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)

	// Auth routes (no session required)
	r.Post("/api/auth/signup", s.handleAuthSignUp)
	r.Post("/api/auth/signin", s.handleAuthSignIn)
	r.Post("/api/auth/refresh", s.handleAuthRefresh)
	r.Post("/api/auth/logout", s.handleAuthLogout)
	r.Post("/api/auth/reset-password/request", s.handleAuthRequestReset)
	r.Post("/api/auth/reset-password", s.handleAuthResetPassword)
	r.Get("/api/session", s.handleSessionInfo)

	// Browsing works without an account; a bearer token personalizes the
	// canClaim flags.
	r.Get("/api/items", s.handleFeed)
	r.Get("/api/items/{itemID}", s.handleGetItem)
	r.Get("/api/search", s.handleSearch)
	r.Get("/api/feed/live", s.handleFeedLive)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Post("/api/items", s.handleReportItem)
		r.Patch("/api/items/{itemID}", s.handleUpdateItem)
		r.Delete("/api/items/{itemID}", s.handleDeleteItem)
		r.Post("/api/images", s.handleUploadImage)

		r.Get("/api/me/items", s.handleMyItems)
		r.Get("/api/me/claims", s.handleMyClaims)

		r.Post("/api/claims", s.handleSubmitClaim)
		r.Get("/api/claims/{claimID}", s.handleGetClaim)

		r.Get("/api/chats", s.handleListChats)
		r.Get("/api/chats/{chatID}", s.handleGetChat)
		r.Get("/api/chats/{chatID}/messages", s.handleChatMessages)
		r.Post("/api/chats/{chatID}/messages", s.handleSendChatMessage)
		r.Post("/api/chats/{chatID}/read", s.handleMarkChatRead)

		r.Get("/api/notifications", s.handleNotifications)
		r.Post("/api/notifications/{noteID}/read", s.handleMarkNotificationRead)

		r.Get("/api/admin/claims", s.handleAdminQueue)
		r.Post("/api/admin/items/{itemID}/verify", s.handleVerifyItem)
		r.Post("/api/admin/claims/{claimID}/resolve", s.handleResolveClaim)
		r.Get("/api/admin/claims/{claimID}/receipt", s.handleReturnReceipt)
		r.Get("/api/admin/notifications", s.handleAdminNotifications)
		r.Post("/api/admin/notifications/{noteID}/resolve", s.handleResolveAdminNotification)
		r.Get("/api/admin/users", s.handleAdminUsers)
		r.Post("/api/admin/users/{userID}/verify", s.handleVerifyUser)
	})

	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// --- Auth handlers ---

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:    body.Email,
		Password: body.Password,
		Name:     body.Name,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	session := Session{}
	if token := bearerToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			session = parsed
		}
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	_ = s.service.Logout(r.Context(), session, body.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	token, mailed, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	response := map[string]any{
		"message": "If that email has an account, reset instructions are on the way",
	}
	// Dev bypass: include the token in the response when email is not
	// configured.
	if token != "" && !mailed {
		response["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ResetPassword(r.Context(), authpw.ResetPasswordRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
	}); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userName":      session.UserName,
		"userId":        session.UserID,
		"role":          session.Role,
	})
}

// --- Feed and items ---

func (s *HTTPServer) handleFeed(w http.ResponseWriter, r *http.Request) {
	viewerID := s.optionalViewer(r)

	filter := feed.Filter{
		Tab:      feed.TabAll,
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Range:    feed.DateRange(strings.TrimSpace(r.URL.Query().Get("range"))),
	}
	switch strings.TrimSpace(r.URL.Query().Get("tab")) {
	case "lost":
		filter.Tab = feed.TabLost
	case "found":
		filter.Tab = feed.TabFound
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		filter.Limit = parsed
	}

	views, err := s.service.BrowseFeed(r.Context(), viewerID, filter)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	payload := make([]map[string]any, 0, len(views))
	for _, v := range views {
		payload = append(payload, itemViewPayload(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": payload})
}

func (s *HTTPServer) handleGetItem(w http.ResponseWriter, r *http.Request) {
	viewerID := s.optionalViewer(r)
	view, err := s.service.GetItem(r.Context(), viewerID, chi.URLParam(r, "itemID"))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, itemViewPayload(view))
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		Text:           strings.TrimSpace(r.URL.Query().Get("q")),
		FilterStatus:   strings.TrimSpace(r.URL.Query().Get("status")),
		FilterCategory: strings.TrimSpace(r.URL.Query().Get("category")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		q.Limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		q.Offset = parsed
	}
	writeJSON(w, http.StatusOK, s.service.SearchItems(q))
}

// handleFeedLive streams feed change signals over SSE. Each event tells the
// client its snapshot may be stale.
func (s *HTTPServer) handleFeedLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Streaming unsupported", nil)
		return
	}

	sub := s.service.Feed().Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "event: hello\ndata: {}\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.C:
			fmt.Fprint(w, "event: change\ndata: {}\n\n")
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func (s *HTTPServer) handleReportItem(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if !s.service.Can(session.Role, rbac.ActionReport) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}

	var input ReportItemInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	item, err := s.service.ReportItem(r.Context(), session, input)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, itemPayload(item))
}

func (s *HTTPServer) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	var input UpdateItemInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	item, err := s.service.UpdateItem(r.Context(), session, chi.URLParam(r, "itemID"), input)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, itemPayload(item))
}

func (s *HTTPServer) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if err := s.service.DeleteItem(r.Context(), session, chi.URLParam(r, "itemID")); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(12 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart form", nil)
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "image field is required", nil)
		return
	}
	defer file.Close()

	url, err := s.service.UploadImage(r.Context(), file)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"url": url})
}

func (s *HTTPServer) handleMyItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.MyItems(r.Context(), sessionFrom(r))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	payload := make([]map[string]any, 0, len(items))
	stats := map[string]int{"total": len(items), "lost": 0, "found": 0, "returned": 0}
	for _, item := range items {
		payload = append(payload, itemPayload(item))
		stats[item.Status]++
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": payload, "stats": stats})
}

func (s *HTTPServer) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := s.service.GetClaim(r.Context(), sessionFrom(r), chi.URLParam(r, "claimID"))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, claimPayload(claim))
}

func (s *HTTPServer) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.service.Chat(r.Context(), sessionFrom(r), chi.URLParam(r, "chatID"))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, chatPayload(chat))
}

func (s *HTTPServer) handleMyClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := s.service.MyClaims(r.Context(), sessionFrom(r))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": claimsPayload(claims)})
}

// --- Claims ---

func (s *HTTPServer) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if !s.service.Can(session.Role, rbac.ActionClaim) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}

	var input SubmitClaimInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	claim, err := s.service.SubmitClaim(r.Context(), session, input)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, claimPayload(claim))
}

// --- Chats and notifications ---

func (s *HTTPServer) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.service.ListChats(r.Context(), sessionFrom(r))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	payload := make([]map[string]any, 0, len(chats))
	for _, chat := range chats {
		payload = append(payload, chatPayload(chat))
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": payload})
}

func (s *HTTPServer) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.service.ChatMessages(r.Context(), sessionFrom(r), chi.URLParam(r, "chatID"))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	payload := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		payload = append(payload, messagePayload(msg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": payload})
}

func (s *HTTPServer) handleSendChatMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Body string `json:"body"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	msg, err := s.service.SendChatMessage(r.Context(), sessionFrom(r), chi.URLParam(r, "chatID"), body.Body)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, messagePayload(msg))
}

func (s *HTTPServer) handleMarkChatRead(w http.ResponseWriter, r *http.Request) {
	if err := s.service.MarkChatRead(r.Context(), sessionFrom(r), chi.URLParam(r, "chatID")); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	notes, err := s.service.Notifications(r.Context(), sessionFrom(r))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	payload := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		payload = append(payload, notificationPayload(note))
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": payload})
}

func (s *HTTPServer) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.service.MarkNotificationRead(r.Context(), sessionFrom(r), chi.URLParam(r, "noteID")); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// --- Admin ---

func (s *HTTPServer) handleAdminQueue(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if !s.service.Can(session.Role, rbac.ActionResolve) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}
	claims, err := s.service.PendingClaims(r.Context())
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": claimsPayload(claims)})
}

func (s *HTTPServer) handleResolveClaim(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if !s.service.Can(session.Role, rbac.ActionResolve) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}

	var input ResolveClaimInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	result, err := s.service.ResolveClaim(r.Context(), session, chi.URLParam(r, "claimID"), input)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	payload := claimPayload(result.Claim)
	payload["rejectedSiblings"] = result.RejectedSiblings
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleReturnReceipt(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if !s.service.Can(session.Role, rbac.ActionResolve) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}
	result, err := s.service.ReturnReceipt(r.Context(), session, chi.URLParam(r, "claimID"))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleAdminNotifications(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if !s.service.Can(session.Role, rbac.ActionAdmin) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}
	notes, err := s.service.AdminNotifications(r.Context(), strings.TrimSpace(r.URL.Query().Get("status")))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	payload := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		payload = append(payload, adminNotificationPayload(note))
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": payload})
}

func (s *HTTPServer) handleResolveAdminNotification(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if !s.service.Can(session.Role, rbac.ActionAdmin) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}
	var body struct {
		Approve bool `json:"approve"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ResolveAdminNotification(r.Context(), session, chi.URLParam(r, "noteID"), body.Approve); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if !s.service.Can(session.Role, rbac.ActionAdmin) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}
	users, err := s.service.ListUsers(r.Context())
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	payload := make([]map[string]any, 0, len(users))
	for _, user := range users {
		payload = append(payload, userPayload(user))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": payload})
}

func (s *HTTPServer) handleVerifyItem(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if !s.service.Can(session.Role, rbac.ActionVerify) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}
	item, err := s.service.VerifyFoundItem(r.Context(), session, chi.URLParam(r, "itemID"))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, itemPayload(item))
}

func (s *HTTPServer) handleVerifyUser(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if !s.service.Can(session.Role, rbac.ActionVerify) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}
	var body struct {
		Verified bool `json:"verified"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, err := s.service.SetUserVerified(r.Context(), session, chi.URLParam(r, "userID"), body.Verified)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, userPayload(user))
}

// --- Session plumbing ---

type sessionKey struct{}

func sessionFrom(r *http.Request) Session {
	session, _ := r.Context().Value(sessionKey{}).(Session)
	return session
}

func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, sql.ErrNoRows) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
				return
			}
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

// optionalViewer resolves the viewer ID from a bearer token when present.
// Anonymous requests get the unpersonalized feed.
func (s *HTTPServer) optionalViewer(r *http.Request) string {
	token := bearerToken(r)
	if token == "" {
		return ""
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		return ""
	}
	return session.UserID
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(writer, r)

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets the SSE endpoint stream through the recorder.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// --- Response payloads ---

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"role":         session.Role,
	}
}

func itemPayload(item store.Item) map[string]any {
	return map[string]any{
		"id":           item.ID,
		"type":         item.Type,
		"title":        item.Title,
		"description":  item.Description,
		"category":     item.Category,
		"location":     item.Location,
		"images":       nonNilStrings(item.Images),
		"postedById":   item.PostedByID,
		"postedByName": item.PostedByName,
		"status":       item.Status,
		"claimStatus":  item.ClaimStatus,
		"returnedTo":   item.ReturnedTo,
		"createdAt":    item.CreatedAt,
		"updatedAt":    item.UpdatedAt,
	}
}

func itemViewPayload(view feed.ItemView) map[string]any {
	payload := itemPayload(view.Item)
	payload["canClaim"] = view.CanClaim
	return payload
}

func claimPayload(claim store.Claim) map[string]any {
	return map[string]any{
		"id":              claim.ID,
		"itemId":          claim.ItemID,
		"itemTitle":       claim.ItemTitle,
		"claimantId":      claim.ClaimantID,
		"claimantName":    claim.ClaimantName,
		"finderId":        claim.FinderID,
		"finderName":      claim.FinderName,
		"status":          claim.Status,
		"description":     claim.Description,
		"proofImages":     nonNilStrings(claim.ProofImages),
		"chatId":          claim.ChatID,
		"rejectionReason": claim.RejectionReason,
		"processedBy":     claim.ProcessedBy,
		"processedAt":     claim.ProcessedAt,
		"createdAt":       claim.CreatedAt,
	}
}

func claimsPayload(claims []store.Claim) []map[string]any {
	payload := make([]map[string]any, 0, len(claims))
	for _, claim := range claims {
		payload = append(payload, claimPayload(claim))
	}
	return payload
}

func chatPayload(chat store.Chat) map[string]any {
	return map[string]any{
		"id":                chat.ID,
		"itemId":            chat.ItemID,
		"claimId":           chat.ClaimID,
		"finderId":          chat.FinderID,
		"claimantId":        chat.ClaimantID,
		"status":            chat.Status,
		"lastMessageText":   chat.LastMessageText,
		"lastMessageSender": chat.LastMessageSender,
		"lastMessageAt":     chat.LastMessageAt,
		"unreadCount":       chat.UnreadCount,
		"createdAt":         chat.CreatedAt,
	}
}

func messagePayload(msg store.ChatMessage) map[string]any {
	return map[string]any{
		"id":        msg.ID,
		"chatId":    msg.ChatID,
		"senderId":  msg.SenderID,
		"body":      msg.Body,
		"system":    msg.System,
		"createdAt": msg.CreatedAt,
	}
}

func notificationPayload(note store.Notification) map[string]any {
	payload := map[string]any{
		"id":        note.ID,
		"type":      note.Type,
		"itemId":    note.ItemID,
		"itemTitle": note.ItemTitle,
		"claimId":   note.ClaimID,
		"chatId":    note.ChatID,
		"read":      note.Read,
		"createdAt": note.CreatedAt,
	}
	if note.Approved != nil {
		payload["approved"] = *note.Approved
	}
	return payload
}

func adminNotificationPayload(note store.AdminNotification) map[string]any {
	return map[string]any{
		"id":         note.ID,
		"type":       note.Type,
		"itemId":     note.ItemID,
		"claimId":    note.ClaimID,
		"status":     note.Status,
		"resolvedBy": note.ResolvedBy,
		"resolvedAt": note.ResolvedAt,
		"createdAt":  note.CreatedAt,
	}
}

func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":        user.ID,
		"name":      user.Name,
		"email":     user.Email,
		"role":      user.Role,
		"verified":  user.Verified,
		"createdAt": user.CreatedAt,
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
