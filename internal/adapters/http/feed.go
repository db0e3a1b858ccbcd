package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/practicerooms/internal/app/orch"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var errBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type feedController struct {
	orch       *orch.Orchestrator
	readLimit  int64
	pingPeriod time.Duration
}

type feedConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *feedConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return errBackpressure
	}
	return nil
}

func (c *feedConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// serve streams room snapshots: one on connect, then one per change.
func (fc *feedController) serve(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}
	if fc.readLimit > 0 {
		ws.SetReadLimit(fc.readLimit)
	}
	conn := &feedConn{conn: ws, send: make(chan []byte, 8)}
	ctx, cancel := context.WithCancel(ctx)

	updates, unsubscribe := fc.orch.Feed().Subscribe()
	rooms, err := fc.orch.Snapshot(ctx)
	if err == nil {
		fc.push(conn, rooms)
	}

	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case rooms, ok := <-updates:
				if !ok {
					return
				}
				fc.push(conn, rooms)
			}
		}
	}()
	go fc.writePump(ctx, conn)
	go fc.readPump(ctx, cancel, conn)
	log.Info().Str("module", "adapters.http").Str("ip", c.ClientIP()).Msg("feed subscriber connected")
}

func (fc *feedController) push(c *feedConn, rooms []orch.RoomView) {
	b, err := json.Marshal(gin.H{"type": "rooms", "rooms": rooms})
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("feed marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "adapters.http").Msg("feed push dropped")
	}
}

func (fc *feedController) writePump(ctx context.Context, c *feedConn) {
	period := fc.pingPeriod
	if period <= 0 {
		period = 54 * time.Second
	}
	ping := time.NewTicker(period)
	defer ping.Stop()
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Debug().Err(err).Str("module", "adapters.http").Msg("feed ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("feed set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "adapters.http").Msg("feed write")
				return
			}
		}
	}
}

// readPump only watches for the peer going away; the feed takes no input.
func (fc *feedController) readPump(ctx context.Context, cancel context.CancelFunc, c *feedConn) {
	defer func() {
		cancel()
		c.Close()
		log.Info().Str("module", "adapters.http").Msg("feed subscriber gone")
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}
