// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	wstypes "towbook-service/internal/domain/websocket"
	"towbook-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

type Hub struct {
	// Registered clients by identity ID
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client

	broadcast chan *BroadcastMessage

	// handlers answer client requests by event type
	handlers map[wstypes.EventType]MessageHandler

	jwtVerifier *jwt.Verifier
	logger      *zap.Logger

	done chan struct{}
}

// BroadcastMessage targets IdentityIDs, or every subscriber of Channel when
// IdentityIDs is nil.
type BroadcastMessage struct {
	IdentityIDs []string
	Channel     wstypes.ChannelType
	Message     *wstypes.WSMessage
}

func NewHub(jwtVerifier *jwt.Verifier, logger *zap.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		Register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *BroadcastMessage, 256),
		handlers:    make(map[wstypes.EventType]MessageHandler),
		jwtVerifier: jwtVerifier,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// AuthenticateClient validates the access token of a connecting client.
func (h *Hub) AuthenticateClient(token string) (*ClientAuth, error) {
	if h.jwtVerifier == nil {
		return nil, ErrUnauthorized
	}
	claims, err := h.jwtVerifier.VerifyAccessToken(token)
	if err != nil {
		return nil, err
	}

	return &ClientAuth{
		IdentityID: claims.IdentityID(),
		SessionID:  claims.ID,
		Roles:      claims.Roles,
		Email:      claims.Email,
	}, nil
}

// Add hands a connected client to the hub. It reports false once the hub
// has stopped.
func (h *Hub) Add(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// RegisterHandler routes the handler's events to it. Call before Run.
func (h *Hub) RegisterHandler(handler MessageHandler) {
	for _, event := range handler.SupportedEvents() {
		h.handlers[event] = handler
	}
}

// HandleClientMessage reports whether a registered handler took the message.
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	handler, exists := h.handlers[msg.Type]
	if !exists {
		return false, nil
	}
	return true, handler.HandleMessage(ctx, client, msg)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.identityID] == nil {
		h.clients[client.identityID] = make(map[*Client]bool)
	}
	h.clients[client.identityID][client] = true

	// Customers always receive their own booking outcomes.
	client.Subscribe(wstypes.ChannelBookings)

	h.logger.Info("websocket client connected",
		zap.String("identity_id", client.identityID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"identity_id": client.identityID,
		"session_id":  client.sessionID,
		"roles":       client.roles,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.identityID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.identityID)
			}

			h.logger.Info("websocket client disconnected",
				zap.String("identity_id", client.identityID),
				zap.String("session_id", client.sessionID),
				zap.Int("total", h.totalClients()),
			)
		}
	}
}

func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.IdentityIDs == nil {
		for _, clients := range h.clients {
			for client := range clients {
				if client.IsSubscribed(msg.Channel) {
					client.SendMessage(msg.Message)
				}
			}
		}
		return
	}

	for _, identityID := range msg.IdentityIDs {
		if clients, ok := h.clients[identityID]; ok {
			for client := range clients {
				if client.IsSubscribed(msg.Channel) {
					client.SendMessage(msg.Message)
				}
			}
		}
	}
}

// Publish queues msg for delivery. It fails once the hub has stopped, or
// if the queue stays full until ctx is done.
func (h *Hub) Publish(ctx context.Context, msg *BroadcastMessage) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendToIdentity delivers an event to every connection of one identity.
func (h *Hub) SendToIdentity(ctx context.Context, identityID string, event wstypes.EventType, data interface{}) error {
	return h.Publish(ctx, &BroadcastMessage{
		IdentityIDs: []string{identityID},
		Channel:     wstypes.ChannelBookings,
		Message:     wstypes.NewMessage(event, data),
	})
}

// BroadcastAdmin delivers an event to every admin subscribed to the admin channel.
func (h *Hub) BroadcastAdmin(ctx context.Context, event wstypes.EventType, data interface{}) error {
	return h.Publish(ctx, &BroadcastMessage{
		Channel: wstypes.ChannelAdmin,
		Message: wstypes.NewMessage(event, data),
	})
}

func (h *Hub) GetConnectedClients(identityID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[identityID])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

// IsUserConnected checks if a user has any active connections
func (h *Hub) IsUserConnected(identityID string) bool {
	return h.GetConnectedClients(identityID) > 0
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
}

// decodeData converts a message payload into target.
func decodeData(data interface{}, target interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
