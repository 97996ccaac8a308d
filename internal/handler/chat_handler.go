package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/newstalk/internal/model"
)

// TutorInterface は会話チューターのインターフェース。
type TutorInterface interface {
	Reply(ctx context.Context, message string, history []model.ChatTurn) (string, error)
}

// ChatHandler は会話チューターのHTTPハンドラー。
type ChatHandler struct {
	tutor TutorInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(tutor TutorInterface) *ChatHandler {
	return &ChatHandler{tutor: tutor}
}

type chatRequest struct {
	Message string           `json:"message"`
	History []model.ChatTurn `json:"history"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Chat はチューターの返答を返す。
// POST /api/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reply, err := h.tutor.Reply(r.Context(), req.Message, req.History)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}
