package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/gorilla/websocket"
)

// defaultScript picks a random waypoint inside the playable area whenever the
// ship has no goal. Scripts receive ship_x, ship_y, world_w, world_h, tick,
// and has_goal, and set goal_x/goal_y (or skip = true to do nothing).
const defaultScript = `
rand := import("rand")

skip := has_goal
goal_x := 0.0
goal_y := 0.0
if !skip {
	margin := 256.0
	goal_x = margin + rand.float() * (world_w - 2.0*margin)
	goal_y = margin + rand.float() * (world_h - 2.0*margin)
}
`

type joinPayload struct {
	ID          string  `json:"id"`
	WorldWidth  float64 `json:"worldWidth"`
	WorldHeight float64 `json:"worldHeight"`
}

type shipFrame struct {
	Type  string `json:"type"`
	Ships []struct {
		ID      string  `json:"id"`
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
		HasGoal bool    `json:"hasGoal"`
	} `json:"ships"`
}

type bot struct {
	id     string
	conn   *websocket.Conn
	script *tengo.Compiled

	worldW float64
	worldH float64

	mu      sync.Mutex
	x, y    float64
	hasGoal bool
	seq     uint64
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "base URL of the navigation server")
	scriptPath := flag.String("script", "", "tengo script deciding goals (optional)")
	ships := flag.Int("ships", 1, "number of ships to drive")
	interval := flag.Duration("interval", 2*time.Second, "decision interval")
	flag.Parse()

	src := defaultScript
	if *scriptPath != "" {
		data, err := os.ReadFile(*scriptPath)
		if err != nil {
			log.Fatalf("read script: %v", err)
		}
		src = string(data)
	}
	compiled, err := compileScript(src)
	if err != nil {
		log.Fatalf("compile script: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < *ships; i++ {
		b, err := connect(*serverURL, compiled.Clone())
		if err != nil {
			log.Fatalf("connect bot %d: %v", i, err)
		}
		log.Printf("bot %s joined (%gx%g world)", b.id, b.worldW, b.worldH)
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.run(ctx, *interval)
		}()
	}
	wg.Wait()
}

func compileScript(src string) (*tengo.Compiled, error) {
	script := tengo.NewScript([]byte(src))
	_ = script.Add("ship_x", 0.0)
	_ = script.Add("ship_y", 0.0)
	_ = script.Add("world_w", 0.0)
	_ = script.Add("world_h", 0.0)
	_ = script.Add("tick", 0)
	_ = script.Add("has_goal", false)
	script.SetImports(stdlib.GetModuleMap(stdlib.AllModuleNames()...))
	return script.Compile()
}

func connect(baseURL string, script *tengo.Compiled) (*bot, error) {
	resp, err := http.Post(baseURL+"/join", "application/json", bytes.NewReader(nil))
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("join status %d", resp.StatusCode)
	}
	var join joinPayload
	if err := json.NewDecoder(resp.Body).Decode(&join); err != nil {
		return nil, fmt.Errorf("decode join: %w", err)
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = "/ws"
	query := parsed.Query()
	query.Set("id", join.ID)
	parsed.RawQuery = query.Encode()

	conn, wsResp, err := websocket.DefaultDialer.Dial(parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if wsResp != nil {
		wsResp.Body.Close()
	}

	return &bot{
		id:     join.ID,
		conn:   conn,
		script: script,
		worldW: join.WorldWidth,
		worldH: join.WorldHeight,
	}, nil
}

func (b *bot) run(ctx context.Context, interval time.Duration) {
	defer b.conn.Close()

	go b.readLoop()

	decide := time.NewTicker(interval)
	defer decide.Stop()
	heartbeat := time.NewTicker(2 * time.Second)
	defer heartbeat.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			b.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-heartbeat.C:
			msg := map[string]any{"type": "heartbeat", "sentAt": time.Now().UnixMilli()}
			if err := b.writeJSON(msg); err != nil {
				log.Printf("bot %s heartbeat failed: %v", b.id, err)
				return
			}
		case <-decide.C:
			tick++
			if err := b.decide(tick); err != nil {
				log.Printf("bot %s decision failed: %v", b.id, err)
				return
			}
		}
	}
}

func (b *bot) decide(tick int) error {
	b.mu.Lock()
	x, y, hasGoal := b.x, b.y, b.hasGoal
	b.mu.Unlock()

	_ = b.script.Set("ship_x", x)
	_ = b.script.Set("ship_y", y)
	_ = b.script.Set("world_w", b.worldW)
	_ = b.script.Set("world_h", b.worldH)
	_ = b.script.Set("tick", tick)
	_ = b.script.Set("has_goal", hasGoal)

	if err := b.script.Run(); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	if b.script.IsDefined("skip") && !b.script.Get("skip").IsUndefined() && b.script.Get("skip").Bool() {
		return nil
	}

	goalX := b.script.Get("goal_x").Float()
	goalY := b.script.Get("goal_y").Float()

	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.mu.Unlock()

	return b.writeJSON(map[string]any{
		"type": "setGoal",
		"x":    goalX,
		"y":    goalY,
		"seq":  seq,
	})
}

func (b *bot) writeJSON(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

func (b *bot) readLoop() {
	for {
		_, payload, err := b.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame shipFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		if frame.Type != "state" {
			continue
		}
		for _, ship := range frame.Ships {
			if ship.ID != b.id {
				continue
			}
			b.mu.Lock()
			b.x, b.y = ship.X, ship.Y
			b.hasGoal = ship.HasGoal
			b.mu.Unlock()
			break
		}
	}
}
