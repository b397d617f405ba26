package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/domain/model/auth"
	"github.com/chronoslack/chronoslack/pkg/domain/types"
	"github.com/chronoslack/chronoslack/pkg/service/token"
	"github.com/chronoslack/chronoslack/pkg/usecase"
	"github.com/chronoslack/chronoslack/pkg/utils/errutil"
)

type scheduleMessageRequest struct {
	ChannelID    string    `json:"channel_id"`
	ChannelName  string    `json:"channel_name"`
	Body         string    `json:"body"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

type messageResponse struct {
	ID            string     `json:"id"`
	ChannelID     string     `json:"channel_id"`
	ChannelName   string     `json:"channel_name"`
	Body          string     `json:"body"`
	ScheduledFor  time.Time  `json:"scheduled_for"`
	Status        string     `json:"status"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toMessageResponse(msg *model.ScheduledMessage) messageResponse {
	return messageResponse{
		ID:            msg.ID.String(),
		ChannelID:     msg.ChannelID,
		ChannelName:   msg.ChannelName,
		Body:          msg.Body,
		ScheduledFor:  msg.ScheduledFor,
		Status:        msg.Status.String(),
		SentAt:        msg.SentAt,
		FailedAt:      msg.FailedAt,
		FailureReason: msg.FailureReason,
		CreatedAt:     msg.CreatedAt,
	}
}

// handleUseCaseError maps use case sentinels onto HTTP status codes
func handleUseCaseError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, usecase.ErrMessageNotFound),
		errors.Is(err, usecase.ErrUserNotFound),
		errors.Is(err, token.ErrUserNotFound):
		errutil.HandleHTTP(r.Context(), w, err, http.StatusNotFound)
	case errors.Is(err, usecase.ErrMessageNotPending):
		errutil.HandleHTTP(r.Context(), w, err, http.StatusConflict)
	case errors.Is(err, usecase.ErrInvalidSession),
		errors.Is(err, usecase.ErrSessionExpired),
		errors.Is(err, token.ErrReauthRequired):
		errutil.HandleHTTP(r.Context(), w, err, http.StatusUnauthorized)
	default:
		errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
	}
}

// sessionUserID returns the Slack user of the validated session. The
// auth middleware guarantees it is present on protected routes.
func sessionUserID(r *http.Request) (types.SlackUserID, bool) {
	session, ok := auth.TokenFromContext(r.Context())
	if !ok {
		return "", false
	}
	return session.SlackUserID, true
}

func scheduleMessageHandler(msgUC *usecase.MessageUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := sessionUserID(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		var req scheduleMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
			return
		}

		if req.ScheduledFor.IsZero() {
			errutil.HandleHTTP(r.Context(), w, goerr.New("scheduled_for is required"), http.StatusBadRequest)
			return
		}

		msg, err := msgUC.Schedule(r.Context(), userID, req.ChannelID, req.ChannelName, req.Body, req.ScheduledFor)
		if err != nil {
			if errors.Is(err, usecase.ErrUserNotFound) {
				handleUseCaseError(w, r, err)
				return
			}
			// Validation failures from the domain model
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
			return
		}

		writeJSON(r.Context(), w, http.StatusCreated, toMessageResponse(msg))
	}
}

func listMessagesHandler(msgUC *usecase.MessageUseCase) http.HandlerFunc {
	type response struct {
		Messages []messageResponse `json:"messages"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := sessionUserID(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		status := types.DeliveryStatus(r.URL.Query().Get("status"))

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid limit"), http.StatusBadRequest)
				return
			}
			limit = n
		}

		msgs, err := msgUC.List(r.Context(), userID, status, limit)
		if err != nil {
			if status != "" && status.Validate() != nil {
				errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
				return
			}
			handleUseCaseError(w, r, err)
			return
		}

		resp := response{Messages: make([]messageResponse, len(msgs))}
		for i, msg := range msgs {
			resp.Messages[i] = toMessageResponse(msg)
		}

		writeJSON(r.Context(), w, http.StatusOK, resp)
	}
}

func cancelMessageHandler(msgUC *usecase.MessageUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := sessionUserID(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		messageID := types.MessageID(chi.URLParam(r, "messageID"))
		if err := msgUC.Cancel(r.Context(), messageID, userID); err != nil {
			handleUseCaseError(w, r, err)
			return
		}

		writeJSON(r.Context(), w, http.StatusOK, successResponse{Success: true})
	}
}

func sendNowHandler(msgUC *usecase.MessageUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := sessionUserID(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		messageID := types.MessageID(chi.URLParam(r, "messageID"))
		msg, err := msgUC.SendNow(r.Context(), messageID, userID)
		if err != nil {
			// A recorded failure still returns the message state
			if msg != nil {
				writeJSON(r.Context(), w, http.StatusBadGateway, toMessageResponse(msg))
				return
			}
			handleUseCaseError(w, r, err)
			return
		}

		writeJSON(r.Context(), w, http.StatusOK, toMessageResponse(msg))
	}
}

func listChannelsHandler(msgUC *usecase.MessageUseCase) http.HandlerFunc {
	type channelResponse struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	type response struct {
		Channels []channelResponse `json:"channels"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := sessionUserID(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		channels, err := msgUC.ListChannels(r.Context(), userID)
		if err != nil {
			handleUseCaseError(w, r, err)
			return
		}

		resp := response{Channels: make([]channelResponse, len(channels))}
		for i, ch := range channels {
			resp.Channels[i] = channelResponse{ID: ch.ID, Name: ch.Name}
		}

		writeJSON(r.Context(), w, http.StatusOK, resp)
	}
}
