package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"huddle/internal/pkg/errs"
	"huddle/internal/pkg/limiter"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the client. Signaling frames
	// carry SDP blobs, so this is well above MaxContentBytes.
	maxMessageSize = 64 * 1024

	// sendBufferSize is the capacity of the outbound queue; a full queue disconnects the client.
	sendBufferSize = 256

	// collaboratorTimeout bounds each store call made on behalf of one frame.
	collaboratorTimeout = 5 * time.Second
)

// Client is one WebSocket connection. Its read goroutine turns frames into Hub
// transitions; its write goroutine drains the send queue filled by the Hub.
type Client struct {
	hub *Hub

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// id is assigned by the Hub on Connect.
	id ConnID

	// a buffered channel used to queue messages waiting to be sent to the client.
	send chan []byte

	// closeCode and closeReason are written by the Hub before send is closed.
	closeCode   int
	closeReason string

	// frames rate-limits inbound frames per connection.
	frames *limiter.KeyedLimiter

	ctx    context.Context
	cancel context.CancelFunc

	logger zerolog.Logger
}

// NewClient constructs a Client. frames may be nil to disable inbound rate limiting.
func NewClient(hub *Hub, wsConn *websocket.Conn, frames *limiter.KeyedLimiter) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		hub:       hub,
		conn:      wsConn,
		send:      make(chan []byte, sendBufferSize),
		closeCode: websocket.CloseNormalClosure,
		frames:    frames,
		ctx:       ctx,
		cancel:    cancel,
		logger:    hub.componentLogger("Client"),
	}
}

// Deliver implements Sink. It never blocks.
func (c *Client) Deliver(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close implements Sink. The Hub calls it exactly once, after which WritePump sends a
// close frame and exits.
func (c *Client) Close(code int, reason string) {
	c.closeCode = code
	c.closeReason = reason
	close(c.send)
}

// Serve registers the client with the Hub and runs both pumps. It returns once the
// connection is gone.
func (c *Client) Serve() error {
	id, err := c.hub.Connect(c)
	if err != nil {
		c.cancel()
		_ = c.conn.Close()
		return err
	}

	c.id = id
	c.logger = c.logger.With().Str("conn_id", string(id)).Logger()

	go c.WritePump()
	c.ReadPump()
	return nil
}

// ReadPump handles reading messages from the WebSocket connection.
// It handles heartbeats (Pong), message parsing, and performs cleanup upon connection closure.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		if c.frames != nil && !c.frames.Allow(string(c.id)) {
			c.hub.reject(c.id, EventServerError, "", errs.NewError(errs.ErrRateLimitExceeded))
			continue
		}

		c.processInboundMessage(messageBytes)
	}
}

// cleanupOnDisconnect runs the Hub's disconnect transition and releases the socket.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Debug().Msg("Client connection cleanup starting.")

	c.cancel()
	c.hub.Disconnect(c.id)

	if c.frames != nil {
		c.frames.Forget(string(c.id))
	}

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// processInboundMessage decodes one client frame and runs the matching transition.
func (c *Client) processInboundMessage(messageBytes []byte) {
	var inbound InboundFrame
	if err := json.Unmarshal(messageBytes, &inbound); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		c.hub.reject(c.id, EventServerError, "", errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, collaboratorTimeout)
	defer cancel()

	switch inbound.Type {
	case EventJoinServer:
		var p JoinServerPayload
		if c.decode(inbound, &p) {
			c.hub.JoinServer(ctx, c.id, p.Username, p.ServerID)
		}

	case EventJoinChannel:
		var p ChannelRefPayload
		if c.decode(inbound, &p) {
			c.hub.JoinChannel(ctx, c.id, p.ChannelID)
		}

	case EventLeaveChannel:
		var p ChannelRefPayload
		if c.decode(inbound, &p) {
			c.hub.LeaveChannel(c.id, p.ChannelID)
		}

	case EventGetMessages:
		var p ChannelRefPayload
		if c.decode(inbound, &p) {
			c.hub.GetMessages(ctx, c.id, p.ChannelID)
		}

	case EventSendMessage:
		var p SendMessagePayload
		if c.decode(inbound, &p) {
			c.hub.SendMessage(ctx, c.id, p.ChannelID, p.Text, inbound.TempID)
		}

	case EventJoinVoice:
		var p ChannelRefPayload
		if c.decode(inbound, &p) {
			c.hub.JoinVoice(ctx, c.id, p.ChannelID)
		}

	case EventLeaveVoice:
		var p ChannelRefPayload
		if c.decode(inbound, &p) {
			c.hub.LeaveVoice(c.id, p.ChannelID)
		}

	case EventOffer, EventAnswer, EventICECandidate:
		var p SignalPayload
		if c.decode(inbound, &p) {
			c.hub.Signal(c.id, inbound.Type, p.Target, p.Payload)
		}

	case EventToggleCamera, EventToggleMicrophone:
		var p TogglePayload
		if c.decode(inbound, &p) {
			c.hub.Toggle(c.id, inbound.Type, p.Enabled)
		}

	case EventUpdateChannelSettings:
		var p UpdateChannelSettingsPayload
		if c.decode(inbound, &p) {
			c.hub.UpdateChannelSettings(ctx, c.id, p.ChannelID, p.Settings)
		}

	case EventDeleteChannel:
		var p ChannelRefPayload
		if c.decode(inbound, &p) {
			c.hub.DeleteChannel(ctx, c.id, p.ChannelID)
		}

	case EventAvatarChanged:
		c.hub.AvatarChanged(c.id)

	default:
		c.logger.Warn().Str("msg_type", inbound.Type).Msg("Client sent unsupported message type")
	}
}

// decode unmarshals the frame payload into dst, reporting a server-error on failure.
func (c *Client) decode(inbound InboundFrame, dst any) bool {
	if len(inbound.Payload) == 0 {
		c.hub.reject(c.id, EventServerError, "", errs.NewError(errs.ErrInvalidParams))
		return false
	}
	if err := json.Unmarshal(inbound.Payload, dst); err != nil {
		c.logger.Warn().Err(err).Str("msg_type", inbound.Type).Msg("Client sent invalid payload")
		c.hub.reject(c.id, EventServerError, "", errs.NewError(errs.ErrInvalidParams))
		return false
	}
	return true
}

// WritePump handles writing messages from the Client.send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage handles messages pulled from the send channel, writing them to the WebSocket.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		closeMessage := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
		if err := c.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
