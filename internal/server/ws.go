package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/igoryan-dao/quill/internal/engine"
	"github.com/igoryan-dao/quill/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks connected stream clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsConn]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*wsConn]bool)}
}

func (h *Hub) add(c *wsConn) {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("[Server] Stream client connected. Total: %d", count)
}

func (h *Hub) remove(c *wsConn) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	c.conn.Close()
	log.Printf("[Server] Stream client disconnected. Total: %d", count)
}

// wsConn serializes writes to one connection. gorilla allows a single
// concurrent writer, and run goroutines emit events concurrently with the
// reader's error replies.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg protocol.RPCMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// handleWSGenerate upgrades to a stream connection. Each "generate" message
// starts one engine run whose plan/step/output/done events echo the request
// id, so a client can multiplex runs over a single socket.
func (h *Handler) handleWSGenerate(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Server] WS upgrade failed: %v", err)
		return
	}

	c := &wsConn{conn: conn}
	h.hub.add(c)
	defer h.hub.remove(c)

	for {
		var msg protocol.RPCMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Server] WS read error: %v", err)
			}
			return
		}

		switch msg.Type {
		case protocol.TypeGenerate:
			var req protocol.GenerateRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil || strings.TrimSpace(req.Goal) == "" {
				c.send(protocol.RPCMessage{ID: msg.ID, Type: protocol.TypeError, Error: "goal is required"})
				continue
			}
			if max := h.maxGoalChars(); utf8.RuneCountInString(req.Goal) > max {
				c.send(protocol.RPCMessage{ID: msg.ID, Type: protocol.TypeError, Error: fmt.Sprintf("goal exceeds %d characters", max)})
				continue
			}
			// Runs execute off the read loop so a long pipeline does not
			// block further requests on this socket.
			go h.streamRun(c, msg.ID, req)

		default:
			c.send(protocol.RPCMessage{ID: msg.ID, Type: protocol.TypeError, Error: "unknown message type: " + msg.Type})
		}
	}
}

func (h *Handler) streamRun(c *wsConn, id any, req protocol.GenerateRequest) {
	// The run deliberately outlives the socket's request context: a client
	// disconnect must not abort an in-flight pipeline.
	ctx := context.Background()

	result := h.Engine.RunStream(ctx, engine.RunRequest{
		Goal:               req.Goal,
		NamespaceContext:   req.NamespaceContext,
		NamespaceKnowledge: h.knowledgeNamespace(req.NamespaceKnowledge),
		DocID:              req.DocID,
	}, func(ev engine.StreamEvent) {
		switch ev.Type {
		case engine.EventPlan:
			steps := make([]protocol.PlanStepEvent, 0, len(ev.Plan.Steps))
			for _, s := range ev.Plan.Steps {
				steps = append(steps, protocol.PlanStepEvent{Step: s.Step, Agent: s.Agent})
			}
			c.send(protocol.RPCMessage{
				ID:      id,
				Type:    protocol.TypePlan,
				Payload: protocol.EncodeRPC(protocol.PlanEvent{Steps: steps}),
			})
		case engine.EventStep:
			c.send(protocol.RPCMessage{
				ID:   id,
				Type: protocol.TypeStep,
				Payload: protocol.EncodeRPC(protocol.StepEvent{
					Step:      ev.Step,
					Agent:     ev.Agent,
					DurationS: ev.Duration.Seconds(),
				}),
			})
		}
	})
	h.persistTrace(result)

	c.send(protocol.RPCMessage{
		ID:      id,
		Type:    protocol.TypeOutput,
		Payload: protocol.EncodeRPC(h.generateResponse(result)),
	})
	c.send(protocol.RPCMessage{ID: id, Type: protocol.TypeDone})
}
