package ws

import (
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"armada/server"
	"armada/server/internal/net/proto"
	"armada/server/internal/sim"
)

type subscription interface {
	WriteMessage(messageType int, data []byte) error
	LastCommandSeq() uint64
	StoreLastCommandSeq(seq uint64)
}

type HandlerConfig struct {
	Logger *log.Logger
}

type Handler struct {
	hub      *server.Hub
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		logger:   logger,
		upgrader: upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	shipID := r.URL.Query().Get("id")
	if shipID == "" {
		nethttp.Error(w, "missing id", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", shipID, err)
		return
	}

	sub, ok := h.hub.Subscribe(shipID, conn)
	if !ok {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown ship")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}

	session := subscription(sub)

	data, err := h.hub.MarshalState()
	if err != nil {
		h.logger.Printf("failed to marshal initial state for %s: %v", shipID, err)
		h.hub.Disconnect(shipID)
		return
	}
	if err := session.WriteMessage(websocket.TextMessage, data); err != nil {
		h.hub.Disconnect(shipID)
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.hub.Disconnect(shipID)
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", shipID, err)
			continue
		}

		normalizedSeq := uint64(0)
		if msg.CommandSeq != nil && *msg.CommandSeq > 0 {
			normalizedSeq = *msg.CommandSeq
		}

		write := func(data []byte, err error) bool {
			if err != nil {
				h.logger.Printf("failed to marshal response for %s: %v", shipID, err)
				return true
			}
			if err := session.WriteMessage(websocket.TextMessage, data); err != nil {
				h.hub.Disconnect(shipID)
				return false
			}
			return true
		}

		sendDuplicateAck := func() bool {
			if normalizedSeq == 0 {
				return true
			}
			return write(proto.EncodeCommandAck(proto.CommandAck{Seq: normalizedSeq}))
		}

		sendCommandAck := func(cmd sim.Command) bool {
			if normalizedSeq == 0 {
				return true
			}
			if !write(proto.EncodeCommandAck(proto.CommandAck{Seq: normalizedSeq, Tick: cmd.OriginTick})) {
				return false
			}
			session.StoreLastCommandSeq(normalizedSeq)
			return true
		}

		sendCommandReject := func(reason string) bool {
			if normalizedSeq == 0 {
				return true
			}
			retry := reason == server.CommandRejectQueueLimit
			return write(proto.EncodeCommandReject(proto.CommandReject{
				Seq:    normalizedSeq,
				Reason: reason,
				Retry:  retry,
			}))
		}

		command, isCommand := proto.ClientCommand(msg)
		switch {
		case isCommand:
			if normalizedSeq > 0 {
				if last := session.LastCommandSeq(); last > 0 && normalizedSeq <= last {
					if !sendDuplicateAck() {
						return
					}
					continue
				}
			}
			cmd, ok, reason := h.hub.StageCommand(shipID, command)
			if normalizedSeq > 0 {
				if ok {
					if !sendCommandAck(cmd) {
						return
					}
				} else if !sendCommandReject(reason) {
					return
				}
			}
			if !ok && reason == server.CommandRejectUnknownActor {
				h.logger.Printf("%s ignored for unknown ship %s", msg.Type, shipID)
			}
		case msg.Type == proto.TypeHeartbeat:
			now := time.Now()
			rtt, ok := h.hub.UpdateHeartbeat(shipID, now, msg.SentAt)
			if !ok {
				continue
			}
			ack, err := proto.EncodeHeartbeat(proto.Heartbeat{
				ServerTime: now.UnixMilli(),
				ClientTime: msg.SentAt,
				RTTMillis:  rtt.Milliseconds(),
			})
			if !write(ack, err) {
				return
			}
		default:
			h.logger.Printf("unknown message type %q from %s", msg.Type, shipID)
		}
	}
}
