package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/mweiss/tagduel/internal/wire"
)

const writeTimeout = 3 * time.Second

// WS adapts a websocket connection to the Channel interface. A single read
// pump decodes inbound frames; malformed frames are logged and dropped rather
// than killing the connection.
type WS struct {
	conn    *websocket.Conn
	inbound chan wire.Envelope
	done    chan struct{}
	once    sync.Once
	log     *zap.Logger
}

func NewWS(conn *websocket.Conn, log *zap.Logger) *WS {
	if log == nil {
		log = zap.NewNop()
	}
	c := &WS{
		conn:    conn,
		inbound: make(chan wire.Envelope, 16),
		done:    make(chan struct{}),
		log:     log,
	}
	go c.readPump()
	return c
}

func (c *WS) readPump() {
	defer c.shutdown(websocket.StatusNormalClosure, "read pump exit")
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			c.log.Debug("channel read failed", zap.Error(err))
			return
		}
		env, err := wire.Decode(data)
		if err != nil {
			c.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		select {
		case c.inbound <- env:
		case <-c.done:
			return
		}
	}
}

func (c *WS) Send(env wire.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		c.shutdown(websocket.StatusAbnormalClosure, "write failed")
		return ErrClosed
	}
	return nil
}

func (c *WS) Inbound() <-chan wire.Envelope { return c.inbound }

func (c *WS) Done() <-chan struct{} { return c.done }

func (c *WS) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *WS) Close() error {
	c.shutdown(websocket.StatusNormalClosure, "bye")
	return nil
}

func (c *WS) shutdown(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close(code, reason)
	})
}
