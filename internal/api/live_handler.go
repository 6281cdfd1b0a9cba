package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/core"
	"github.com/example/quakealert/internal/liveview"
	"github.com/example/quakealert/internal/models"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = (livePongWait * 9) / 10
	liveMaxMessage = 4 * 1024
)

// Client actions on the live socket.
const (
	actionOpenChat  = "open_chat"
	actionCloseChat = "close_chat"
)

// liveCommand is one client-to-server frame. For direct chats ID is the peer's
// user id, for group chats the group id.
type liveCommand struct {
	Action string             `json:"action"`
	Kind   models.ChannelKind `json:"kind"`
	ID     string             `json:"id"`
}

// LiveHandler upgrades authenticated requests to a websocket and relays the
// caller's live view over it.
type LiveHandler struct {
	sync     *liveview.Synchronizer
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewLiveHandler creates a LiveHandler. allowedOrigins is the comma-separated
// CLIENT_URL list; when empty every origin is accepted.
func NewLiveHandler(sync *liveview.Synchronizer, allowedOrigins string, logger *zap.Logger) *LiveHandler {
	origins := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}
	return &LiveHandler{
		sync:   sync,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(origins) == 0 {
					return true
				}
				if origins[origin] {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && u.Host == r.Host
			},
		},
	}
}

// Live handles GET /live. Closing the socket ends the session.
func (h *LiveHandler) Live(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade live connection", zap.String("userID", userID), zap.Error(err))
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	sess := h.sync.Start(ctx, userID)
	defer sess.Close()
	logger := h.logger.With(zap.String("sessionID", sess.ID()), zap.String("userID", userID))

	replies := make(chan gin.H, 4)
	go h.readCommands(ctx, cancel, ws, sess, userID, replies, logger)

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()
	for {
		var frame gin.H
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(liveWriteWait))
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				logger.Debug("Live ping failed", zap.Error(err))
				return
			}
			continue
		case frame = <-replies:
		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			frame = eventFrame(ev)
		}
		_ = ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
		if err := ws.WriteJSON(frame); err != nil {
			logger.Debug("Live write failed", zap.Error(err))
			return
		}
	}
}

// readCommands applies client commands until the socket fails, then cancels
// the session context.
func (h *LiveHandler) readCommands(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, sess *liveview.Session, userID string, replies chan<- gin.H, logger *zap.Logger) {
	defer cancel()
	ws.SetReadLimit(liveMaxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(livePongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(livePongWait))
	})

	for {
		var cmd liveCommand
		if err := ws.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("Live connection closed unexpectedly", zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(livePongWait))

		var err error
		switch cmd.Action {
		case actionOpenChat:
			err = sess.OpenChat(ctx, commandChannel(userID, cmd))
		case actionCloseChat:
			sess.CloseChat()
		default:
			err = core.ErrInvalidInput
		}
		if err != nil {
			_, resp := classifyError(err)
			select {
			case replies <- gin.H{"type": string(liveview.KindError), "error": resp.Error, "code": resp.Code}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func commandChannel(userID string, cmd liveCommand) models.ChannelRef {
	if cmd.Kind == models.ChannelDirect {
		return core.DirectChannel(userID, cmd.ID)
	}
	return models.ChannelRef{Kind: cmd.Kind, ID: cmd.ID}
}

// eventFrame renders a live event as a server-to-client frame. Collection
// frames always carry their list, empty or not.
func eventFrame(ev liveview.Event) gin.H {
	frame := gin.H{"type": string(ev.Kind)}
	switch ev.Kind {
	case liveview.KindProfile:
		frame["profile"] = ev.Profile
	case liveview.KindRequests:
		frame["requests"] = ev.Requests
	case liveview.KindGroups:
		frame["groups"] = ev.Groups
	case liveview.KindMessages:
		frame["channel"] = ev.Channel
		frame["messages"] = ev.Messages
	case liveview.KindChatClosed:
		_, resp := classifyError(ev.Err)
		frame["channel"] = ev.Channel
		frame["error"] = resp.Error
		frame["code"] = resp.Code
	case liveview.KindError:
		frame["error"] = "live subscription failed"
		frame["code"] = "store_unavailable"
		if ev.Channel != nil {
			frame["channel"] = ev.Channel
		}
	}
	return frame
}
