package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	service "github.com/stellaide/server/internal/services"
	pkgerrors "github.com/stellaide/server/pkg/errors"
)

type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/createRoom", h.CreateRoom).Methods("POST")
	r.HandleFunc("/chatRoom", h.GetRoom).Methods("GET")
	r.HandleFunc("/chatRoom/load", h.LoadMessages).Methods("GET")
}

// CreateRoom takes a bare container id. One room per container; a second
// create for the same container conflicts.
func (h *ChatHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContainerID string `json:"containerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.ErrIncorrectFormat)
		return
	}
	containerID, err := uuid.Parse(req.ContainerID)
	if err != nil {
		writeError(w, pkgerrors.ErrIncorrectFormat)
		return
	}

	room, err := h.chatService.CreateRoom(r.Context(), containerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, room)
}

// GetRoom resolves a room either by its id or by the container it belongs
// to, whichever query parameter is present.
func (h *ChatHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("containerId"); raw != "" {
		containerID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, pkgerrors.ErrIncorrectFormat)
			return
		}
		room, err := h.chatService.GetRoomByContainer(r.Context(), containerID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, room)
		return
	}

	roomID, err := strconv.ParseInt(r.URL.Query().Get("roomId"), 10, 64)
	if err != nil {
		writeError(w, pkgerrors.ErrIncorrectFormat)
		return
	}

	room, err := h.chatService.GetRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, room)
}

func (h *ChatHandler) LoadMessages(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseInt(r.URL.Query().Get("roomId"), 10, 64)
	if err != nil {
		writeError(w, pkgerrors.ErrIncorrectFormat)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	pageResult, err := h.chatService.GetMessagePage(r.Context(), roomID, page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, pageResult)
}
