package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/pliu/chatcore/internal/metrics"
)

var ErrHubClosed = errors.New("ws: hub closed")

// Frame is what a client receives for every published event.
type Frame struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

type outbound struct {
	channel string
	data    []byte
}

// Hub fans frames out to the clients subscribed to a channel. All client
// bookkeeping happens on the Run goroutine.
type Hub struct {
	log *slog.Logger

	// Registered clients.
	clients map[*Client]struct{}

	// Subscribers per channel.
	channels map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	done       chan struct{}
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*Client]struct{}),
		channels:   make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			for _, channel := range client.channels {
				subs, ok := h.channels[channel]
				if !ok {
					subs = make(map[*Client]struct{})
					h.channels[channel] = subs
				}
				subs[client] = struct{}{}
			}
			metrics.WebsocketClients.Inc()
			h.log.Debug("Websocket client registered", "account", client.accountID, "channels", len(client.channels))
		case client := <-h.unregister:
			h.remove(client)
		case msg := <-h.broadcast:
			for client := range h.channels[msg.channel] {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer; it can refetch after reconnecting.
					h.remove(client)
				}
			}
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for _, channel := range client.channels {
		if subs, ok := h.channels[channel]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.channels, channel)
			}
		}
	}
	close(client.send)
	metrics.WebsocketClients.Dec()
}

// Publish implements realtime.Publisher. It only waits for room in the
// broadcast buffer, never for clients.
func (h *Hub) Publish(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Frame{Channel: channel, Event: event, Data: data})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- outbound{channel: channel, data: frame}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
