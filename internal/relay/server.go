package relay

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"bunkerlink/internal/crypto"
	"bunkerlink/internal/domain"
)

// Server is a minimal NIP-01 relay over websocket. It keeps no history:
// events reach only the subscriptions open at publish time.
type Server struct {
	bus      *MemoryBus
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewServer returns a relay that routes events through bus.
func NewServer(bus *MemoryBus, log zerolog.Logger) *Server {
	return &Server{
		bus: bus,
		log: log.With().Str("component", "relay_server").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Bus returns the bus the server publishes into.
func (s *Server) Bus() *MemoryBus { return s.bus }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}
	ws.SetReadLimit(maxFrameSize)
	c := &serverConn{
		srv:  s,
		ws:   ws,
		subs: make(map[string][]domain.Subscription),
		log:  s.log.With().Str("remote", r.RemoteAddr).Logger(),
	}
	c.log.Debug().Msg("client connected")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	c.serve(ctx)
}

type serverConn struct {
	srv *Server
	ws  *websocket.Conn
	log zerolog.Logger
	wmu sync.Mutex

	mu   sync.Mutex
	subs map[string][]domain.Subscription
}

func (c *serverConn) serve(ctx context.Context) {
	defer func() {
		c.closeAll()
		_ = c.ws.Close()
		c.log.Debug().Msg("client disconnected")
	}()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.handle(ctx, raw)
	}
}

func (c *serverConn) handle(ctx context.Context, raw []byte) {
	label, args, err := decodeFrame(raw)
	if err != nil {
		c.write(labelNotice, "invalid: "+err.Error())
		return
	}
	switch label {
	case labelEvent:
		var ev domain.Event
		if err := arg(args, 0, &ev); err != nil {
			c.write(labelNotice, "invalid: "+err.Error())
			return
		}
		if err := crypto.VerifyEvent(ev); err != nil {
			c.write(labelOK, ev.ID, false, "invalid: "+err.Error())
			return
		}
		if err := c.srv.bus.Publish(ctx, nil, ev); err != nil {
			c.write(labelOK, ev.ID, false, "error: "+err.Error())
			return
		}
		c.write(labelOK, ev.ID, true, "")
	case labelReq:
		var subID string
		if err := arg(args, 0, &subID); err != nil || subID == "" {
			c.write(labelNotice, "invalid: REQ needs a subscription id")
			return
		}
		filters := make([]domain.Filter, 0, len(args)-1)
		for i := 1; i < len(args); i++ {
			var f domain.Filter
			if err := arg(args, i, &f); err != nil {
				c.write(labelClosed, subID, "invalid: "+err.Error())
				return
			}
			filters = append(filters, f)
		}
		if len(filters) == 0 {
			filters = append(filters, domain.Filter{})
		}
		c.subscribe(ctx, subID, filters)
		c.write(labelEOSE, subID)
	case labelClose:
		var subID string
		_ = arg(args, 0, &subID)
		c.unsubscribe(subID)
	default:
		c.write(labelNotice, "unknown message: "+label)
	}
}

func (c *serverConn) subscribe(ctx context.Context, subID string, filters []domain.Filter) {
	c.unsubscribe(subID)

	var once sync.Map
	deliver := func(ev domain.Event) {
		if _, dup := once.LoadOrStore(ev.ID, struct{}{}); dup {
			return
		}
		c.write(labelEvent, subID, ev)
	}
	subs := make([]domain.Subscription, 0, len(filters))
	for _, f := range filters {
		sub, err := c.srv.bus.Subscribe(ctx, nil, f, deliver)
		if err != nil {
			c.write(labelClosed, subID, "error: "+err.Error())
			return
		}
		subs = append(subs, sub)
	}
	c.mu.Lock()
	c.subs[subID] = subs
	c.mu.Unlock()
}

func (c *serverConn) unsubscribe(subID string) {
	c.mu.Lock()
	subs := c.subs[subID]
	delete(c.subs, subID)
	c.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
}

func (c *serverConn) closeAll() {
	c.mu.Lock()
	all := c.subs
	c.subs = map[string][]domain.Subscription{}
	c.mu.Unlock()
	var err error
	for _, subs := range all {
		for _, s := range subs {
			err = multierr.Append(err, s.Close())
		}
	}
	if err != nil {
		c.log.Debug().Err(err).Msg("closing subscriptions")
	}
}

func (c *serverConn) write(label string, args ...any) {
	b, err := encodeFrame(label, args...)
	if err != nil {
		c.log.Error().Err(err).Str("label", label).Msg("encode frame")
		return
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		c.log.Debug().Err(err).Str("label", label).Msg("write failed")
	}
}
