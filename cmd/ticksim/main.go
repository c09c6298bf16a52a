// cmd/ticksim — Demo WebSocket ticker server.
// Broadcasts simulated raw exchange tickers for running the pipeline without
// live exchange connectivity.
//
// Ticker JSON shape is identical to normalize.RawTicker:
//
//	{"symbol":"BTC/USDT","timestamp":1700000000000,"last":50123.5,"volume":12.4,...}
//
// Config (env vars):
//
//	TICKSIM_ADDR        — listen address (default: ":9001")
//	TICKSIM_SYMBOLS     — comma-separated symbols (default: "BTC/USDT,ETH/USDT")
//	TICKSIM_INTERVAL_MS — broadcast interval milliseconds (default: "100")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gamboaalejandro/trading-bot/internal/marketdata/normalize"
)

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol string
	Price  float64
	High   float64
	Low    float64
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop ticker
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[ticksim] upgrade error: %v", err)
			return
		}
		log.Printf("[ticksim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[ticksim] client disconnected: %s", r.RemoteAddr)
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// walkPrice applies a random walk of up to ±0.1% per tick.
func walkPrice(price float64, rng *rand.Rand) float64 {
	pct := (rng.Float64()*0.2 - 0.1) / 100.0
	next := price * (1 + pct)
	if next < 0.0001 {
		next = 0.0001
	}
	return next
}

func runGenerator(h *hub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for range ticker.C {
		for i := range instruments {
			inst := &instruments[i]
			inst.Price = walkPrice(inst.Price, rng)
			if inst.Price > inst.High {
				inst.High = inst.Price
			}
			if inst.Price < inst.Low {
				inst.Low = inst.Price
			}

			last, volume := inst.Price, rng.Float64()*10
			spread := inst.Price * 0.0002
			bid, ask := inst.Price-spread, inst.Price+spread
			high, low := inst.High, inst.Low

			msg := normalize.RawTicker{
				Symbol:    inst.Symbol,
				Timestamp: time.Now().UTC().UnixMilli(),
				Last:      &last,
				Volume:    &volume,
				Bid:       &bid,
				Ask:       &ask,
				High:      &high,
				Low:       &low,
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[ticksim] starting demo ticker server...")

	addr := envOrDefault("TICKSIM_ADDR", ":9001")
	symbolsEnv := envOrDefault("TICKSIM_SYMBOLS", "BTC/USDT,ETH/USDT")
	intervalMs := envIntOrDefault("TICKSIM_INTERVAL_MS", 100)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[ticksim] no symbols configured via TICKSIM_SYMBOLS")
	}
	log.Printf("[ticksim] symbols: %+v", instruments)
	log.Printf("[ticksim] broadcast interval: %dms", intervalMs)

	h := newHub()
	go runGenerator(h, instruments, intervalMs)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"ticksim"}`)
	})

	log.Printf("[ticksim] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[ticksim] server error: %v", err)
	}
}

func parseInstruments(s string) []instrument {
	startPrices := map[string]float64{
		"BTC/USDT": 50000,
		"ETH/USDT": 3000,
		"SOL/USDT": 150,
	}

	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		price := startPrices[strings.ToUpper(part)]
		if price == 0 {
			price = 100
		}
		result = append(result, instrument{
			Symbol: part,
			Price:  price,
			High:   price,
			Low:    price,
		})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
