package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pliu/chatcore/internal/apperr"
	"github.com/pliu/chatcore/internal/chat"
	"github.com/pliu/chatcore/internal/middleware"
	"github.com/pliu/chatcore/internal/models"
	"github.com/pliu/chatcore/internal/realtime"
	"github.com/pliu/chatcore/internal/respond"
	"github.com/pliu/chatcore/internal/ws"
	"github.com/samber/lo"
)

type ChatHandler struct {
	Service  *chat.Service
	Hub      *ws.Hub
	Upgrader websocket.Upgrader
	Log      *slog.Logger
}

type CountResponse struct {
	Updated int64 `json:"updated"`
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid request body")
	}
	return nil
}

func (h *ChatHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	respond.Error(w, r, h.Log, err)
}

func (h *ChatHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	filter, err := models.ParseRoomFilter(r.URL.Query().Get("type"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rooms, err := h.Service.ListRooms(r.Context(), middleware.UserID(r.Context()), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.OK(w, "rooms fetched", rooms)
}

func (h *ChatHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.Service.GetRoom(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.OK(w, "room fetched", room)
}

func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.Service.GetMessages(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.OK(w, "messages fetched", messages)
}

func (h *ChatHandler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.Service.SearchMessages(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.OK(w, "messages fetched", messages)
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req chat.SendRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	msg, err := h.Service.SendMessage(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "message sent", msg)
}

func (h *ChatHandler) DirectRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.Service.GetOrCreateDirectRoom(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["peerId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.OK(w, "direct chat ready", room)
}

func (h *ChatHandler) GroupRoom(w http.ResponseWriter, r *http.Request) {
	var req chat.CreateGroupRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	room, err := h.Service.GetOrCreateGroupRoom(r.Context(), middleware.UserID(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.OK(w, "group chat ready", room)
}

func (h *ChatHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req chat.CreateRoomRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	room, err := h.Service.CreateRoom(r.Context(), middleware.UserID(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.OK(w, "chat room ready", room)
}

func (h *ChatHandler) RenameRoom(w http.ResponseWriter, r *http.Request) {
	var req chat.RenameRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	room, err := h.Service.RenameRoom(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.OK(w, "room renamed", room)
}

func (h *ChatHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	var req chat.AddMembersRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	room, created, err := h.Service.AddMembers(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if created {
		respond.JSON(w, http.StatusCreated, "group chat created", room)
		return
	}
	respond.OK(w, "members added", room)
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.MarkRead(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.OK(w, "messages marked as read", CountResponse{Updated: n})
}

func (h *ChatHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.MarkDelivered(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.OK(w, "messages marked as delivered", CountResponse{Updated: n})
}

func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	forAll := false
	if raw := r.URL.Query().Get("deleteForAll"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(w, r, apperr.Validation("deleteForAll must be true or false"))
			return
		}
		forAll = parsed
	}
	if err := h.Service.DeleteMessage(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], forAll); err != nil {
		h.fail(w, r, err)
		return
	}
	respond.OK(w, "message deleted", nil)
}

func (h *ChatHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteRoom(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	respond.OK(w, "room deleted", nil)
}

// ServeWs subscribes the caller to the content and status channels of the
// requested rooms, or of every room they belong to when none is named.
func (h *ChatHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	roomIDs := lo.Uniq(lo.Compact(r.URL.Query()["room"]))
	if len(roomIDs) == 0 {
		rooms, err := h.Service.ListRooms(ctx, userID, models.FilterAll)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		roomIDs = lo.Map(rooms, func(v models.RoomView, _ int) string { return v.ID })
	} else {
		for _, id := range roomIDs {
			if _, err := h.Service.GetRoom(ctx, userID, id); err != nil {
				h.fail(w, r, err)
				return
			}
		}
	}

	channels := lo.FlatMap(roomIDs, func(id string, _ int) []string {
		return []string{realtime.ContentChannel(id), realtime.StatusChannel(id)}
	})
	ws.ServeWs(h.Hub, h.Upgrader, w, r, userID, channels)
}
