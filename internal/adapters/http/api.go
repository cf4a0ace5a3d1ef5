package http

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/dkeye/Relay/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// API serves the live room views and the persisted history.
type API struct {
	Rooms  *app.RoomManager
	Store  store.Store
	Router *orch.Orchestrator
}

type markRoomRequest struct {
	RoomID  string `json:"roomId"`
	GroupID string `json:"groupId"`
}

type postMessageRequest struct {
	Text string `json:"text"`
}

type createGroupRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotMember):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidCursor), errors.Is(err, domain.ErrEmptyGroupName),
		errors.Is(err, domain.ErrEmptyText), errors.Is(err, domain.ErrTextTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, orch.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Error().Str("module", "adapters.http").Str("path", c.FullPath()).Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func queryInt(c *gin.Context, key string) int {
	n, _ := strconv.Atoi(c.Query(key))
	return n
}

func (a *API) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, a.Rooms.List())
}

func (a *API) roomMembers(c *gin.Context) {
	room, ok := a.Rooms.Get(domain.RoomID(c.Param("id")))
	if !ok {
		writeError(c, domain.ErrNotFound)
		return
	}
	members := room.MembersSnapshot()
	sort.Slice(members, func(i, j int) bool { return members[i].SID < members[j].SID })
	c.JSON(http.StatusOK, gin.H{"room": room.Room().ID, "members": members, "count": len(members)})
}

func (a *API) history(c *gin.Context) {
	msgs, next, err := a.Store.History(c.Request.Context(), domain.RoomID(c.Param("roomId")), c.Query("after"), queryInt(c, "limit"))
	if err != nil {
		writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "next": next})
}

func (a *API) groupHistory(c *gin.Context) {
	msgs, next, err := a.Store.GroupHistory(c.Request.Context(), domain.GroupID(c.Param("groupId")), c.Query("after"), queryInt(c, "limit"))
	if err != nil {
		writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = []domain.GroupMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "next": next})
}

// postGroupMessage stores a message from a group member and relays it to
// whoever is live in the group's room.
func (a *API) postGroupMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	ctx := c.Request.Context()
	group := domain.GroupID(c.Param("groupId"))
	members, err := a.Store.FindGroupMembers(ctx, group)
	if err != nil {
		writeError(c, err)
		return
	}
	user := currentUser(c)
	if !(domain.Group{Members: members}).HasMember(user) {
		writeError(c, domain.ErrNotMember)
		return
	}
	id, err := a.Router.PostMessage(ctx, domain.RoomID(group), protocol.Chat{
		Room:     domain.RoomID(group),
		Text:     req.Text,
		SenderID: user,
		IsGroup:  true,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, domain.GroupMessage{ID: id, GroupID: group, Sender: user, Text: req.Text, CreatedAt: time.Now()})
}

func (a *API) markRoomRead(c *gin.Context) {
	var req markRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.RoomID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid roomId"})
		return
	}
	n, err := a.Store.MarkRoomRead(c.Request.Context(), domain.RoomID(req.RoomID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (a *API) listGroups(c *gin.Context) {
	groups, err := a.Store.ListGroups(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if groups == nil {
		groups = []domain.Group{}
	}
	c.JSON(http.StatusOK, groups)
}

func (a *API) createGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	g := &domain.Group{Name: strings.TrimSpace(req.Name), Description: req.Description}
	for _, m := range req.Members {
		u, err := domain.NewUser(m)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		g.Members = append(g.Members, u.ID)
	}
	if err := a.Store.CreateGroup(c.Request.Context(), g); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (a *API) notifications(kind domain.NotificationKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := a.Store.Notifications(c.Request.Context(), currentUser(c), kind, queryInt(c, "page"), queryInt(c, "limit"))
		if err != nil {
			writeError(c, err)
			return
		}
		if list == nil {
			list = []domain.Notification{}
		}
		c.JSON(http.StatusOK, list)
	}
}

func (a *API) markNotificationsRead(kind domain.NotificationKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req markRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		room := req.RoomID
		if kind == domain.NotifyGroupMessage && req.GroupID != "" {
			room = req.GroupID
		}
		if strings.TrimSpace(room) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing roomId"})
			return
		}
		n, err := a.Store.MarkNotificationsRead(c.Request.Context(), currentUser(c), kind, domain.RoomID(room))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": n})
	}
}

func (a *API) markNotificationRead(c *gin.Context) {
	n, err := a.Store.MarkNotificationRead(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (a *API) unreadCount(c *gin.Context) {
	n, err := a.Store.UnreadCount(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}
