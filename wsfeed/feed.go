// Package wsfeed broadcasts live dispatch telemetry (SOC, state-machine
// transitions, equivalent full cycles) to connected browser clients, per
// spec.md §4.6's ops surface. Grounded directly on the teacher's
// scheduler/server.go WebServer: a gorilla/websocket Upgrader, a sync.Map of
// connections, a buffered broadcast channel, and a done channel for
// cancellation, rebuilt around dispatch state instead of miner stats.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devskill-org/bess-bidder/dispatch"
	"github.com/devskill-org/bess-bidder/ephemeris"
	"github.com/devskill-org/bess-bidder/strategy"
)

// Feed serves a WebSocket endpoint broadcasting periodic telemetry snapshots.
// A nil *Feed (constructed with port <= 0) is a valid no-op.
type Feed struct {
	controller *dispatch.Controller
	strat      *strategy.Strategy

	server    *http.Server
	port      int
	upgrader  websocket.Upgrader
	clients   sync.Map
	broadcast chan []byte
	done      chan struct{}
	lat, lon  float64
}

// Snapshot is one telemetry message pushed to every connected client.
type Snapshot struct {
	Type                 string    `json:"type"`
	Timestamp            string    `json:"timestamp"`
	DispatchState        string    `json:"dispatch_state"`
	CurrentSOC           float64   `json:"current_soc"`
	EquivalentFullCycles float64   `json:"equivalent_full_cycles"`
	LedgerLen            int       `json:"ledger_len"`
	LastDispatchTS       time.Time `json:"last_dispatch_ts,omitempty"`
	IsDaylight           bool      `json:"is_daylight"`
}

// New builds a telemetry feed. If port <= 0 the feed is disabled and New
// returns nil, matching the teacher's NewWebServer(port<=0) convention. lat/lon
// feed each snapshot's is_daylight field (see ephemeris.IsDaylight).
func New(ctrl *dispatch.Controller, strat *strategy.Strategy, port int, lat, lon float64) *Feed {
	if port <= 0 {
		return nil
	}

	f := &Feed{
		controller: ctrl,
		strat:      strat,
		port:       port,
		lat:        lat,
		lon:        lon,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.wsHandler)
	f.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return f
}

// Start launches the broadcast loop, the periodic snapshot ticker, and the
// WebSocket listener.
func (f *Feed) Start() error {
	if f == nil {
		return nil
	}
	go f.handleBroadcasts()
	go f.broadcastLoop()
	go func() {
		if err := f.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("wsfeed: server error: %v\n", err)
		}
	}()
	return nil
}

// Stop closes every connection and shuts down the listener.
func (f *Feed) Stop(ctx context.Context) error {
	if f == nil {
		return nil
	}
	close(f.done)
	f.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})
	return f.server.Shutdown(ctx)
}

func (f *Feed) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("wsfeed: upgrade error: %v\n", err)
		return
	}

	f.clients.Store(conn, true)
	_ = conn.WriteJSON(f.snapshot())

	defer func() {
		f.clients.Delete(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("wsfeed: read error: %v\n", err)
			}
			break
		}
	}
}

func (f *Feed) handleBroadcasts() {
	for {
		select {
		case message := <-f.broadcast:
			f.clients.Range(func(key, value any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					f.clients.Delete(conn)
				}
				return true
			})
		case <-f.done:
			return
		}
	}
}

func (f *Feed) broadcastLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hasClients := false
			f.clients.Range(func(key, value any) bool {
				hasClients = true
				return false
			})
			if !hasClients {
				continue
			}
			message, err := json.Marshal(f.snapshot())
			if err != nil {
				fmt.Printf("wsfeed: marshal error: %v\n", err)
				continue
			}
			f.broadcast <- message
		case <-f.done:
			return
		}
	}
}

func (f *Feed) snapshot() Snapshot {
	now := time.Now()
	return Snapshot{
		Type:                 "status_update",
		Timestamp:            now.UTC().Format(time.RFC3339),
		DispatchState:        f.controller.State().String(),
		CurrentSOC:           f.strat.CurrentSOC(),
		EquivalentFullCycles: f.strat.EquivalentFullCycles(),
		LedgerLen:            f.strat.LedgerLen(),
		LastDispatchTS:       f.strat.LastDispatchTS(),
		IsDaylight:           ephemeris.IsDaylight(now, f.lat, f.lon),
	}
}
