package visualizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait      = 1 * time.Second
	readDeadline   = time.Second
	pubResolution  = 100 * time.Millisecond
	pingResolution = 200 * time.Millisecond
	pongWait       = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

// ErrPongDeadlineExceeded reports a client that stopped answering pings.
var ErrPongDeadlineExceeded = errors.New("visualizer client disconnect, pong deadline exceeded")

// client publishes one subscriber's update stream to a single websocket
// peer, rate-limiting publication internally per §4.8's "rate-limited
// internally" visualizer contract: an update that arrives less than
// pubResolution after the previously published one is dropped rather than
// queued, so of a burst only the first update is sent.
type client struct {
	updates <-chan Update
	ws      *websocket.Conn
}

func newClient(updates <-chan Update, ws *websocket.Conn) *client {
	return &client{updates: updates, ws: ws}
}

// sync runs the client's read (liveness), ping, and publish loops until the
// peer disconnects or the context is cancelled.
func (c *client) sync(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error { return c.readPump(groupCtx) })
	group.Go(func() error { return c.pingPong(groupCtx) })
	group.Go(func() error { return c.publish(groupCtx) })

	err := group.Wait()
	c.close()
	return err
}

// readPump only exists to drive the gorilla pong handler; the visualizer
// contract is push-only, so any inbound payload is discarded.
func (c *client) readPump(ctx context.Context) error {
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

func (c *client) pingPong(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	c.ws.SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (c *client) publish(ctx context.Context) error {
	var last time.Time
	for update := range channerics.OrDone(ctx.Done(), c.updates) {
		if time.Since(last) < pubResolution {
			continue
		}
		last = time.Now()

		if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return fmt.Errorf("visualizer: set write deadline: %w", err)
		}
		if err := c.ws.WriteJSON(update); err != nil {
			if isUnexpectedClose(err) {
				return fmt.Errorf("visualizer: publish: %w", err)
			}
			return err
		}
	}
	return nil
}

func (c *client) close() {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.ws.Close()
}

func isUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
