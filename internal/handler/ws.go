package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quizblitz/live-server/internal/audit"
	"github.com/quizblitz/live-server/internal/config"
	apperrors "github.com/quizblitz/live-server/internal/errors"
	"github.com/quizblitz/live-server/internal/game"
	"github.com/quizblitz/live-server/internal/hub"
	"github.com/quizblitz/live-server/internal/middleware"
	"github.com/quizblitz/live-server/internal/registry"
	"github.com/quizblitz/live-server/internal/util"
)

// frame is one inbound socket message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type hostJoinPayload struct {
	Code string `json:"code"`
}

type joinPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// SocketHandler runs the gameplay websocket. Each connection gets a hub
// handle; inbound frames are routed to the session the connection joined and
// outbound events reach it through the hub.
type SocketHandler struct {
	hub             *hub.Hub
	sessions        *registry.Registry
	limiter         *middleware.RateLimiter
	eventsPerSecond int
	upgrader        websocket.Upgrader
}

func NewSocketHandler(h *hub.Hub, sessions *registry.Registry, cfg *config.Config) *SocketHandler {
	return &SocketHandler{
		hub:             h,
		sessions:        sessions,
		limiter:         middleware.NewRateLimiter(time.Second),
		eventsPerSecond: cfg.EventsPerSecond,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || cfg.OriginAllowed(origin)
			},
		},
	}
}

type connection struct {
	conn   *websocket.Conn
	client *hub.Client
	hostID string
	req    *http.Request
}

// GET /ws
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("ip", audit.ClientIP(r)).Msg("websocket upgrade failed")
		return
	}

	c := &connection{
		conn:   conn,
		client: h.hub.Connect(),
		hostID: strings.TrimSpace(r.Header.Get(middleware.HostIDHeader)),
		req:    r,
	}
	handle := c.client.Handle

	log.Debug().Str("handle", handle).Bool("host", c.hostID != "").Msg("socket connected")

	go h.writePump(c)
	h.readPump(c)

	ctx, cancel := context.WithTimeout(context.Background(), config.SocketEventTimeout)
	defer cancel()
	if h.hub.Room(c.client) != "" {
		h.sessions.Disconnect(ctx, handle)
	}
	h.limiter.Forget(handle)
	h.hub.Disconnect(c.client)

	log.Debug().Str("handle", handle).Msg("socket closed")
}

func (h *SocketHandler) readPump(c *connection) {
	c.conn.SetReadLimit(config.SocketMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.SocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(config.SocketPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("handle", c.client.Handle).Msg("socket closed unexpectedly")
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			h.sendError(c, apperrors.ValidationError("Malformed frame"))
			continue
		}

		if allowed, _, _ := h.limiter.Check(c.client.Handle, h.eventsPerSecond); !allowed {
			h.sendError(c, apperrors.RateLimitExceeded())
			continue
		}

		ctx, cancel := context.WithTimeout(c.req.Context(), config.SocketEventTimeout)
		err = h.handleFrame(ctx, c, f)
		cancel()
		if err != nil {
			h.sendError(c, err)
		}
	}
}

func (h *SocketHandler) writePump(c *connection) {
	ticker := time.NewTicker(config.SocketPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.client.Done:
			c.conn.SetWriteDeadline(time.Now().Add(config.SocketWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case env := <-c.client.Events:
			c.conn.SetWriteDeadline(time.Now().Add(config.SocketWriteWait))
			if err := c.conn.WriteJSON(env); err != nil {
				log.Debug().Err(err).Str("handle", c.client.Handle).Msg("socket write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.SocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *SocketHandler) sendError(c *connection, err error) {
	h.hub.ToConnection(c.client.Handle, game.EventError, errorPayload(err))
}

func (h *SocketHandler) handleFrame(ctx context.Context, c *connection, f frame) error {
	switch f.Event {
	case game.EventHostJoin:
		var p hostJoinPayload
		if err := decodeFrame(f, &p); err != nil {
			return err
		}
		return h.hostJoin(ctx, c, p.Code)

	case game.EventJoin:
		var p joinPayload
		if err := decodeFrame(f, &p); err != nil {
			return err
		}
		return h.join(ctx, c, p.Code, p.Name)
	}

	code := h.hub.Room(c.client)
	if code == "" {
		return apperrors.WrongPhase(f.Event + " before joining a session")
	}
	if err := h.sessions.Dispatch(ctx, code, f.Event, f.Data, c.client.Handle); err != nil {
		return err
	}
	if f.Event == game.EventLeave {
		h.hub.LeaveRoom(c.client)
	}
	return nil
}

func decodeFrame(f frame, dst any) error {
	if len(f.Data) == 0 {
		return apperrors.MissingRequired("data")
	}
	if err := json.Unmarshal(f.Data, dst); err != nil {
		return apperrors.ValidationError("Malformed payload")
	}
	return nil
}

// enter finds the session for code and runs attach on its goroutine with the
// connection already in the room, so the joiner sees its own roster update.
func (h *SocketHandler) enter(ctx context.Context, c *connection, code string, attach func(*game.Session) error) error {
	if !util.IsValidJoinCode(code, config.JoinCodeDigits) {
		return apperrors.InvalidInput("code", "must be a 6 digit join code")
	}
	if current := h.hub.Room(c.client); current != "" && current != code {
		return apperrors.Conflict("Connection already belongs to another session")
	}

	session, ok := h.sessions.Lookup(code)
	if !ok {
		return apperrors.NotFound("Session")
	}

	return session.Do(ctx, func(s *game.Session) error {
		wasMember := h.hub.Room(c.client) == code
		h.hub.JoinRoom(c.client, code)
		if err := attach(s); err != nil {
			if !wasMember {
				h.hub.LeaveRoom(c.client)
			}
			return err
		}
		return nil
	})
}

func (h *SocketHandler) hostJoin(ctx context.Context, c *connection, code string) error {
	if c.hostID == "" {
		return apperrors.Unauthorized("Missing host identity")
	}

	err := h.enter(ctx, c, code, func(s *game.Session) error {
		return s.AttachHost(c.hostID, c.client.Handle)
	})

	switch {
	case err == nil:
		audit.LogFromRequest(c.req, audit.Event{Type: audit.EventHostAttach, HostID: c.hostID, Code: code})
	case apperrors.GetCode(err) == apperrors.ErrCodeForbidden:
		audit.LogFromRequest(c.req, audit.Event{Type: audit.EventHostRejected, HostID: c.hostID, Code: code})
	}
	return err
}

func (h *SocketHandler) join(ctx context.Context, c *connection, code, name string) error {
	return h.enter(ctx, c, code, func(s *game.Session) error {
		_, err := s.Join(name, c.client.Handle)
		return err
	})
}
