// Package transport implements the Connection Adapter (C8): a WebSocket
// wrapper exposing the small Send/Close/IsOpen/Identity surface the room
// hub depends on, plus inbound frame size-gating and token-based identity
// extraction at handshake time.
package transport

import (
	"sync"
	"time"

	"github.com/evalgo-org/diagramhub/hub"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var _ hub.Connection = (*Adapter)(nil)

// MaxMessageSize bounds a single inbound frame.
const MaxMessageSize = 1 << 20 // 1 MiB

// writeTimeout bounds how long a single outbound frame write may take
// before the adapter gives up and reports the peer as unsendable.
const writeTimeout = 5 * time.Second

// sendQueueSize is the buffered channel depth backing Send. A full queue
// means the peer is too slow to keep up; Send returns an error rather than
// blocking the caller, so the hub can skip this peer for the broadcast.
const sendQueueSize = 64

// sendRateLimit and sendBurst bound outbound frames per connection: a
// token-bucket throttle distinct from the Hub's own inbound warning-counter
// rate limiter, protecting a connection's write pump (and the peer's
// bandwidth) from a burst of broadcasts rather than policing inbound abuse.
const sendRateLimit = 50 // frames/sec
const sendBurst = 100

// TokenVerifier is the external collaborator that turns a bearer token
// into an identity, or rejects it. Implemented by tokenauth.
type TokenVerifier interface {
	Verify(token string) (userID *string, role *string, err error)
}

// Adapter wraps a single *websocket.Conn and implements hub.Connection
// without hub importing gorilla/websocket directly.
type Adapter struct {
	conn   *websocket.Conn
	logger *logrus.Entry

	mu     sync.Mutex
	open   bool
	userID *string
	role   *string

	send    chan string
	done    chan struct{}
	closer  sync.Once
	limiter *rate.Limiter
}

// New wraps conn, starts its write pump, and records the identity
// established at handshake time (both may be nil for an anonymous
// connection).
func New(conn *websocket.Conn, userID, role *string, logger *logrus.Entry) *Adapter {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	conn.SetReadLimit(MaxMessageSize)

	a := &Adapter{
		conn:    conn,
		logger:  logger.WithField("component", "transport.adapter"),
		open:    true,
		userID:  userID,
		role:    role,
		send:    make(chan string, sendQueueSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(sendRateLimit), sendBurst),
	}
	go a.writePump()
	return a
}

// Send enqueues msg for delivery. It never blocks: a full queue (a peer
// that can't keep up) or an exhausted send-rate budget is reported back to
// the caller immediately rather than stalling the broadcaster.
func (a *Adapter) Send(msg string) error {
	a.mu.Lock()
	open := a.open
	a.mu.Unlock()
	if !open {
		return errConnClosed
	}
	if !a.limiter.Allow() {
		return errSendRateLimited
	}
	select {
	case a.send <- msg:
		return nil
	default:
		return errSendQueueFull
	}
}

// Close closes the underlying socket and stops the write pump.
func (a *Adapter) Close(code int, reason string) error {
	a.closer.Do(func() {
		a.mu.Lock()
		a.open = false
		a.mu.Unlock()
		close(a.done)

		deadline := time.Now().Add(writeTimeout)
		_ = a.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = a.conn.Close()
	})
	return nil
}

// IsOpen reports whether the adapter can still accept sends.
func (a *Adapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

// Identity returns the identity established at handshake time.
func (a *Adapter) Identity() (userID *string, role *string) {
	return a.userID, a.role
}

// ReadMessage blocks for the next inbound text frame, enforcing
// MaxMessageSize via the read limit set in New. Callers (the API layer's
// per-connection read loop) call this in a tight loop until it errors.
func (a *Adapter) ReadMessage() ([]byte, error) {
	_, data, err := a.conn.ReadMessage()
	return data, err
}

func (a *Adapter) writePump() {
	for {
		select {
		case <-a.done:
			return
		case msg := <-a.send:
			a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := a.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				a.logger.WithError(err).Debug("write failed, closing adapter")
				_ = a.Close(websocket.CloseInternalServerErr, "write error")
				return
			}
		}
	}
}
