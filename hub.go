package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"armada/server/internal/nav"
	"armada/server/internal/net/proto"
	"armada/server/internal/sim"
	"armada/server/internal/telemetry"
	"armada/server/logging"
)

const (
	// CommandRejectUnknownActor indicates the command referenced a ship the
	// hub does not know about.
	CommandRejectUnknownActor = "unknown_actor"
	// CommandRejectQueueLimit mirrors the loop's per-actor throttle reason.
	CommandRejectQueueLimit = sim.CommandRejectQueueLimit
	// CommandRejectQueueFull mirrors the loop's saturation reason.
	CommandRejectQueueFull = sim.CommandRejectQueueFull
)

const (
	broadcastBytesMetricKey   = "hub_broadcast_bytes_total"
	broadcastEntitiesMetric   = "hub_broadcast_entities_total"
	subscriberCountMetricKey  = "hub_subscribers"
	tickDurationMetricKey     = "hub_tick_duration_micros"
	tickBudgetOverrunsMetric  = "hub_tick_budget_overruns_total"
	heartbeatTimeoutsMetric   = "hub_heartbeat_timeouts_total"
	subscriberWriteErrsMetric = "hub_subscriber_write_errors_total"
)

// clientInfo is the hub-side connectivity record for one joined ship.
type clientInfo struct {
	joinedAt      time.Time
	lastHeartbeat time.Time
	lastRTT       time.Duration
}

// subscriber serializes websocket writes for one connection.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex

	lastCommandSeq atomic.Uint64
}

// WriteMessage writes one frame under the shared write deadline.
func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

// LastCommandSeq returns the newest acknowledged command sequence.
func (s *subscriber) LastCommandSeq() uint64 {
	return s.lastCommandSeq.Load()
}

// StoreLastCommandSeq records the newest acknowledged command sequence.
func (s *subscriber) StoreLastCommandSeq(seq uint64) {
	s.lastCommandSeq.Store(seq)
}

// DiagnosticsClient is one row of the diagnostics endpoint.
type DiagnosticsClient struct {
	ID            string `json:"id"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	RTTMillis     int64  `json:"rtt"`
}

// Hub owns the simulation loop, the joined clients, and their websocket
// subscriptions. All client-facing surfaces go through it.
type Hub struct {
	cfg  ServerConfig
	deps sim.Deps

	world *sim.World
	loop  *sim.Loop

	mu          sync.Mutex
	clients     map[string]*clientInfo
	subscribers map[string]*subscriber
	lastState   proto.StateSnapshotV1

	nextID atomic.Uint64
	tick   atomic.Uint64

	logger  telemetry.Logger
	metrics telemetry.Metrics
	clock   logging.Clock
}

// NewHub builds the world, wraps it in a loop, and wires the broadcast hook.
func NewHub(cfg ServerConfig, deps sim.Deps) *Hub {
	cfg = cfg.Normalized()
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	h := &Hub{
		cfg:         cfg,
		deps:        deps,
		clients:     make(map[string]*clientInfo),
		subscribers: make(map[string]*subscriber),
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		clock:       deps.Clock,
	}
	h.lastState = proto.NewStateSnapshotV1(0, h.clock.Now().UnixMilli(), nil, nil)

	h.world = sim.NewWorld(cfg.World, deps)
	h.loop = sim.NewLoop(h.world, sim.LoopConfig{
		TickRate:        cfg.TickRate,
		CatchupMaxTicks: cfg.CatchupMaxTicks,
		CommandCapacity: cfg.CommandCapacity,
		PerActorLimit:   cfg.PerActorLimit,
		WarningStep:     cfg.QueueWarningStep,
	}, sim.LoopHooks{
		NextTick:  func() uint64 { return h.tick.Add(1) },
		AfterStep: h.afterStep,
		OnQueueWarning: func(length int) {
			if h.logger != nil {
				h.logger.Printf("[backpressure] command queue depth %d", length)
			}
		},
	})
	return h
}

// Run drives the simulation loop until the stop channel closes.
func (h *Hub) Run(stop <-chan struct{}) {
	h.loop.Run(stop)
}

// Loop exposes the command loop for tests and tooling.
func (h *Hub) Loop() *sim.Loop {
	return h.loop
}

// CurrentTick reports the latest issued tick number.
func (h *Hub) CurrentTick() uint64 {
	return h.tick.Load()
}

// Join registers a new client, schedules its ship spawn for the next tick,
// and returns the join payload built from the latest broadcast state.
func (h *Hub) Join() proto.JoinResponseV1 {
	id := fmt.Sprintf("ship-%d", h.nextID.Add(1))
	now := h.clock.Now()

	h.mu.Lock()
	h.clients[id] = &clientInfo{joinedAt: now, lastHeartbeat: now}
	state := h.lastState
	h.mu.Unlock()

	h.loop.Enqueue(sim.Command{
		OriginTick: h.CurrentTick() + 1,
		ActorID:    id,
		Type:       sim.CommandSpawn,
		IssuedAt:   now,
		Spawn:      &sim.SpawnCommand{},
	})

	return proto.NewJoinResponseV1(id, state.Tick, h.cfg.TickRate, h.cfg.World.Width, h.cfg.World.Height, state.Ships)
}

// Subscribe associates a websocket connection with a joined client. An
// existing connection for the same id is replaced.
func (h *Hub) Subscribe(shipID string, conn *websocket.Conn) (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	info, ok := h.clients[shipID]
	if !ok {
		return nil, false
	}
	info.lastHeartbeat = h.clock.Now()

	if existing, ok := h.subscribers[shipID]; ok {
		existing.conn.Close()
	}
	sub := &subscriber{conn: conn}
	h.subscribers[shipID] = sub
	h.storeSubscriberCountLocked()
	return sub, true
}

// Disconnect drops the client, closes its connection, and schedules the ship
// despawn. Reports whether the id was known.
func (h *Hub) Disconnect(shipID string) bool {
	h.mu.Lock()
	sub, subOK := h.subscribers[shipID]
	if subOK {
		delete(h.subscribers, shipID)
	}
	_, clientOK := h.clients[shipID]
	if clientOK {
		delete(h.clients, shipID)
	}
	h.storeSubscriberCountLocked()
	h.mu.Unlock()

	if subOK {
		sub.conn.Close()
	}
	if !clientOK {
		return false
	}
	h.loop.Enqueue(sim.Command{
		OriginTick: h.CurrentTick() + 1,
		ActorID:    shipID,
		Type:       sim.CommandDespawn,
		IssuedAt:   h.clock.Now(),
	})
	return true
}

// SetGoal stages a navigation goal for the ship.
func (h *Hub) SetGoal(shipID string, x, y float64) (sim.Command, bool, string) {
	return h.StageCommand(shipID, sim.Command{
		Type:    sim.CommandSetGoal,
		SetGoal: &sim.SetGoalCommand{TargetX: x, TargetY: y},
	})
}

// ClearGoal stages a goal removal for the ship.
func (h *Hub) ClearGoal(shipID string) (sim.Command, bool, string) {
	return h.StageCommand(shipID, sim.Command{Type: sim.CommandClearGoal})
}

// UpdateHeartbeat records connectivity metadata and stages the heartbeat for
// the world. Returns the smoothed RTT for the client echo.
func (h *Hub) UpdateHeartbeat(shipID string, receivedAt time.Time, clientSent int64) (time.Duration, bool) {
	h.mu.Lock()
	info, ok := h.clients[shipID]
	if !ok {
		h.mu.Unlock()
		return 0, false
	}
	info.lastHeartbeat = receivedAt
	var rtt time.Duration
	if clientSent > 0 {
		clientTime := time.UnixMilli(clientSent)
		if clientTime.Before(receivedAt.Add(5 * time.Second)) {
			rtt = receivedAt.Sub(clientTime)
			if rtt < 0 {
				rtt = 0
			}
			info.lastRTT = rtt
		}
	}
	rtt = info.lastRTT
	h.mu.Unlock()

	h.StageCommand(shipID, sim.Command{
		Type:      sim.CommandHeartbeat,
		Heartbeat: &sim.HeartbeatCommand{ReceivedAt: receivedAt, ClientSent: clientSent, RTT: rtt},
	})
	return rtt, true
}

// UpdateTuning stages a navigation tunables swap for the next tick boundary.
func (h *Hub) UpdateTuning(cfg nav.Config) (bool, string) {
	ok, reason := h.loop.Enqueue(sim.Command{
		OriginTick: h.CurrentTick() + 1,
		Type:       sim.CommandTune,
		IssuedAt:   h.clock.Now(),
		Tune:       &sim.TuneCommand{Nav: cfg},
	})
	return ok, reason
}

// StageCommand stamps actor and origin metadata onto a client command and
// hands it to the loop. The returned command carries the stamped metadata;
// the reject reason is empty on success.
func (h *Hub) StageCommand(shipID string, cmd sim.Command) (sim.Command, bool, string) {
	h.mu.Lock()
	_, known := h.clients[shipID]
	h.mu.Unlock()
	if !known {
		return sim.Command{}, false, CommandRejectUnknownActor
	}
	cmd.ActorID = shipID
	cmd.OriginTick = h.CurrentTick() + 1
	cmd.IssuedAt = h.clock.Now()
	ok, reason := h.loop.Enqueue(cmd)
	if !ok {
		return sim.Command{}, false, reason
	}
	return cmd, true, ""
}

// LatestState returns the last broadcast state payload.
func (h *Hub) LatestState() proto.StateSnapshotV1 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastState
}

// MarshalState renders the latest state payload for a fresh subscriber.
func (h *Hub) MarshalState() ([]byte, error) {
	return proto.EncodeStateSnapshot(h.LatestState())
}

// TelemetrySnapshot exposes the metric counters when the configured metrics
// sink supports it.
func (h *Hub) TelemetrySnapshot() map[string]uint64 {
	if snapshotter, ok := h.metrics.(interface{ TelemetrySnapshot() map[string]uint64 }); ok {
		return snapshotter.TelemetrySnapshot()
	}
	return nil
}

// TickRate reports the configured simulation frequency.
func (h *Hub) TickRate() int {
	return h.cfg.TickRate
}

// DiagnosticsSnapshot exposes heartbeat data for the diagnostics endpoint.
func (h *Hub) DiagnosticsSnapshot() []DiagnosticsClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := make([]DiagnosticsClient, 0, len(h.clients))
	for id, info := range h.clients {
		clients = append(clients, DiagnosticsClient{
			ID:            id,
			LastHeartbeat: info.lastHeartbeat.UnixMilli(),
			RTTMillis:     info.lastRTT.Milliseconds(),
		})
	}
	return clients
}

// afterStep runs on the loop goroutine after every tick: it publishes the
// fresh state to all subscribers and evicts clients whose heartbeats lapsed.
func (h *Hub) afterStep(result sim.LoopStepResult) {
	if h.metrics != nil {
		h.metrics.Store(tickDurationMetricKey, uint64(result.Duration.Microseconds()))
		if result.Duration > result.Budget {
			h.metrics.Add(tickBudgetOverrunsMetric, 1)
		}
	}

	state := proto.NewStateSnapshotV1(result.Tick, result.Now.UnixMilli(), result.Snapshot.Ships, result.RemovedShips)

	h.mu.Lock()
	h.lastState = state
	subs := make(map[string]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	stale := h.staleClientsLocked(result.Now)
	h.mu.Unlock()

	for _, id := range stale {
		if h.logger != nil {
			h.logger.Printf("disconnecting %s due to heartbeat timeout", id)
		}
		if h.metrics != nil {
			h.metrics.Add(heartbeatTimeoutsMetric, 1)
		}
		h.Disconnect(id)
		delete(subs, id)
	}

	data, err := proto.EncodeStateSnapshot(state)
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("failed to marshal state message: %v", err)
		}
		return
	}
	if h.metrics != nil && len(subs) > 0 {
		h.metrics.Add(broadcastBytesMetricKey, uint64(len(data))*uint64(len(subs)))
		h.metrics.Add(broadcastEntitiesMetric, uint64(len(state.Ships))*uint64(len(subs)))
	}

	for id, sub := range subs {
		if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
			if h.logger != nil {
				h.logger.Printf("failed to send update to %s: %v", id, err)
			}
			if h.metrics != nil {
				h.metrics.Add(subscriberWriteErrsMetric, 1)
			}
			h.Disconnect(id)
		}
	}
}

// staleClientsLocked collects ids whose last heartbeat is older than five
// missed intervals. Clients that never subscribed get the same grace period
// from their join time.
func (h *Hub) staleClientsLocked(now time.Time) []string {
	deadline := 5 * HeartbeatInterval
	var stale []string
	for id, info := range h.clients {
		if now.Sub(info.lastHeartbeat) > deadline {
			stale = append(stale, id)
		}
	}
	return stale
}

func (h *Hub) storeSubscriberCountLocked() {
	if h.metrics == nil {
		return
	}
	h.metrics.Store(subscriberCountMetricKey, uint64(len(h.subscribers)))
}
