package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/notify"
	"github.com/safar/go-sql-shop/internal/store"
)

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	unreadOnly := r.URL.Query().Get("unread") == "true"

	result, unread, err := store.ListNotifications(r.Context(), h.DB, identity(r).UserID, page, pageSize, unreadOnly)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]any{
		"notifications": result,
		"unread_count":  unread,
	})
}

func (h *Handler) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"notification_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		respondFail(w, http.StatusBadRequest, "notification_ids must not be empty")
		return
	}

	marked, err := store.MarkNotificationsRead(r.Context(), h.DB, identity(r).UserID, req.IDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]int64{"marked": marked})
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	marked, err := store.MarkAllRead(r.Context(), h.DB, identity(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]int64{"marked": marked})
}

func (h *Handler) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string  `json:"token"`
		Platform *string `json:"platform"`
		Lang     *string `json:"lang"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		respondFail(w, http.StatusBadRequest, "token is required")
		return
	}

	userID := identity(r).UserID
	device, err := store.RegisterDevice(r.Context(), h.DB, token, &userID, trimmed(req.Platform), trimmed(req.Lang))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, device)
}

func (h *Handler) unregisterDevice(w http.ResponseWriter, r *http.Request) {
	if err := store.UnregisterDevice(r.Context(), h.DB, chi.URLParam(r, "token")); err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, nil)
}

func (h *Handler) notificationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.GetNotificationStats(r.Context(), h.DB, identity(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, stats)
}

// getNotification marks the notification read as a side effect of opening it.
func (h *Handler) getNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	n, err := store.ReadNotification(r.Context(), h.DB, identity(r).UserID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, n)
}

func (h *Handler) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := store.DeleteNotification(r.Context(), h.DB, identity(r).UserID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, nil)
}

type sendNotificationRequest struct {
	Type   models.NotificationType `json:"type"`
	Title  string                  `json:"title"`
	Body   string                  `json:"body"`
	UserID *int64                  `json:"user_id"`
	Data   map[string]string       `json:"data"`
}

// problem returns the first validation failure, or "".
func (req *sendNotificationRequest) problem() string {
	req.Type = models.NotificationType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)

	switch {
	case !req.Type.Valid():
		return "invalid notification type"
	case utf8.RuneCountInString(req.Title) < 2 || utf8.RuneCountInString(req.Title) > 100:
		return "title must be between 2 and 100 characters"
	case utf8.RuneCountInString(req.Body) < 2 || utf8.RuneCountInString(req.Body) > 500:
		return "body must be between 2 and 500 characters"
	case req.UserID != nil && *req.UserID < 1:
		return "invalid user_id"
	}
	return ""
}

// adminSendNotification targets one user when user_id is set and every user
// otherwise.
func (h *Handler) adminSendNotification(w http.ResponseWriter, r *http.Request) {
	var req sendNotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if msg := req.problem(); msg != "" {
		respondFail(w, http.StatusBadRequest, msg)
		return
	}

	msg := notify.Message{Type: req.Type, Title: req.Title, Body: req.Body, Data: req.Data}

	if req.UserID == nil {
		result, err := h.Notifier.Broadcast(r.Context(), msg)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.requestLog(r).WithField("recipients", result.Recipients).Info("Broadcast notification sent")
		respondSuccess(w, http.StatusCreated, result)
		return
	}

	msg.UserID = *req.UserID
	outcome, err := h.Notifier.Notify(r.Context(), msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	failed := make([]string, 0, len(outcome.Failed))
	for name := range outcome.Failed {
		failed = append(failed, name)
	}
	respondSuccess(w, http.StatusCreated, map[string]any{
		"notification_id": outcome.NotificationID,
		"pushed":          outcome.Pushed(),
		"delivered":       outcome.Delivered,
		"failed":          failed,
	})
}

func (h *Handler) adminListCampaigns(w http.ResponseWriter, r *http.Request) {
	filter := store.CampaignFilter{
		Type:   models.NotificationType(strings.ToUpper(r.URL.Query().Get("type"))),
		Search: r.URL.Query().Get("q"),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		respondFail(w, http.StatusBadRequest, "invalid notification type")
		return
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			respondFail(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	campaigns, err := store.ListNotificationCampaigns(r.Context(), h.DB, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]any{
		"campaigns": campaigns,
		"total":     len(campaigns),
	})
}
