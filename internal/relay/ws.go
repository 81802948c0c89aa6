package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/skillswap/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8 * 1024
	maxMessageText = 2000
)

// Inbound frame types.
const (
	frameRegister         = "register"
	frameSendMessage      = "sendMessage"
	frameSendNotification = "sendNotification"
)

// inbound is a frame sent by the browser.
type inbound struct {
	Type       string            `json:"type"`
	ReceiverID string            `json:"receiverId"`
	Text       string            `json:"text"`
	Kind       model.RequestKind `json:"kind"`
}

// PeerChecker reports whether two members share a swap or course request.
type PeerChecker interface {
	SharesRequest(ctx context.Context, a, b string) (bool, error)
}

// Server upgrades HTTP requests to WebSocket connections bound to the hub.
type Server struct {
	hub      *Hub
	peers    PeerChecker
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer creates a WebSocket server. With no allowed origins only
// same-origin upgrades are accepted. A nil peers lets sendNotification reach
// any member.
func NewServer(hub *Hub, peers PeerChecker, allowedOrigins []string, logger *slog.Logger) *Server {
	s := &Server{
		hub:    hub,
		peers:  peers,
		logger: logger.With(slog.String("component", "relay_ws")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if len(allowedOrigins) > 0 {
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, origin)
		}
	}
	return s
}

// Serve runs one connection for the authenticated member until it closes.
//
// THE IDENTITY IS NOT THE CLIENT'S TO CHOOSE:
// Registration and every message sent on this connection use user.ID, taken
// from the session token. Frames cannot claim to be someone else.
//
// ONE WRITER:
// gorilla/websocket allows a single concurrent writer. Only writePump writes;
// everything else, including error replies, goes through the client's
// Outbound channel.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, user *model.User) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		s.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := NewClient(user.ID)
	s.hub.Track(client)
	s.logger.Debug("websocket connected",
		slog.String("identity", user.ID),
		slog.String("client_id", client.ID.String()),
	)

	go s.writePump(conn, client)
	s.readPump(r, conn, client, user)

	s.hub.Unregister(client)
	client.Close()
	s.logger.Debug("websocket disconnected", slog.String("client_id", client.ID.String()))
}

func (s *Server) readPump(r *http.Request, conn *websocket.Conn, client *Client, user *model.User) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", slog.String("error", err.Error()))
			}
			return
		}

		// Hub.Disconnect closed us; ignore anything still in flight.
		select {
		case <-client.Done():
			return
		default:
		}

		var frame inbound
		if err := json.Unmarshal(data, &frame); err != nil {
			s.reject(client, "frame is not valid JSON")
			continue
		}

		switch frame.Type {
		case frameRegister:
			s.hub.Register(user.ID, client)

		case frameSendMessage:
			if frame.ReceiverID == "" || frame.Text == "" {
				s.reject(client, "sendMessage needs receiverId and text")
				continue
			}
			if len(frame.Text) > maxMessageText {
				s.reject(client, "message text is too long")
				continue
			}
			s.hub.RelayMessage(ctx, user.ID, frame.ReceiverID, frame.Text)

		case frameSendNotification:
			if frame.ReceiverID == "" {
				s.reject(client, "sendNotification needs receiverId")
				continue
			}
			if !s.sharesRequest(ctx, client, user.ID, frame.ReceiverID) {
				continue
			}
			kind := frame.Kind
			if !kind.Valid() {
				kind = model.KindSwap
			}
			s.hub.NotifyRequest(ctx, user.Name, frame.ReceiverID, kind)

		default:
			s.reject(client, "unknown frame type "+frame.Type)
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-client.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case ev := <-client.Outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				client.Close()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}
		}
	}
}

// sharesRequest rejects the frame unless sender and receiver have a request
// between them.
func (s *Server) sharesRequest(ctx context.Context, client *Client, sender, receiver string) bool {
	if s.peers == nil {
		return true
	}
	ok, err := s.peers.SharesRequest(ctx, sender, receiver)
	if err != nil {
		s.logger.Error("checking request peers",
			slog.String("sender", sender),
			slog.String("receiver", receiver),
			slog.String("error", err.Error()),
		)
		s.reject(client, "could not verify the receiver")
		return false
	}
	if !ok {
		s.reject(client, "you have no request with this member")
		return false
	}
	return true
}

func (s *Server) reject(client *Client, message string) {
	client.send(Event{Type: EventError, Data: ErrorPayload{Message: message}})
}
