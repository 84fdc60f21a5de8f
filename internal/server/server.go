// Package server implements the framed TCP request surface strategies connect
// to. Each connection must register its run mode before any other request;
// malformed frames drop the offending connection without touching the rest.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/quantfold/tradecore/internal/domain"
	"github.com/quantfold/tradecore/internal/wire"
)

// OrderQueue is the slice of the matching engine intake the server routes
// order requests into.
type OrderQueue interface {
	Submit(o *domain.Order, now time.Time) error
	Cancel(id string, now time.Time) (*domain.Order, error)
}

// SliceProvider produces the consolidated time-slice pushed to a registered
// streamer at its cadence.
type SliceProvider interface {
	ConsolidatedSlice(ctx context.Context, account string) ([]byte, error)
}

// Config holds the TCP server configuration.
type Config struct {
	Addr string
}

// Server accepts strategy connections and routes their framed requests.
type Server struct {
	cfg    Config
	queue  OrderQueue
	slices SliceProvider
	bus    domain.EventBus
	logger *slog.Logger

	mu sync.Mutex
	ln net.Listener
}

// New creates a strategy server. The slice provider may be nil when no
// streamer support is wanted.
func New(cfg Config, queue OrderQueue, slices SliceProvider, bus domain.EventBus, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		queue:  queue,
		slices: slices,
		bus:    bus,
		logger: logger.With(slog.String("component", "server")),
	}
}

// Start listens on the configured address and serves connections until the
// context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "listening", slog.String("addr", ln.Addr().String()))

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		go s.HandleConn(ctx, conn)
	}
}

// Addr returns the bound listener address, for tests using port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// HandleConn runs the read loop for one strategy connection.
func (s *Server) HandleConn(ctx context.Context, conn net.Conn) {
	sess := &session{
		srv:    s,
		conn:   conn,
		logger: s.logger.With(slog.String("remote", conn.RemoteAddr().String())),
	}
	defer sess.close()

	for {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				sess.logger.WarnContext(ctx, "dropping connection",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		req, err := wire.DecodeRequest(frame)
		if err != nil {
			sess.logger.WarnContext(ctx, "malformed request, dropping connection",
				slog.String("error", err.Error()),
			)
			return
		}

		if !sess.handle(ctx, req) {
			return
		}
	}
}

// session is the per-connection state: registration and a write lock so the
// streamer goroutine and request replies never interleave frames.
type session struct {
	srv    *Server
	conn   net.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	once    sync.Once

	registered bool
	account    string
	mode       domain.RunMode

	streamerCancel context.CancelFunc
}

func (c *session) close() {
	c.once.Do(func() {
		if c.streamerCancel != nil {
			c.streamerCancel()
		}
		_ = c.conn.Close()
	})
}

// handle dispatches one request and reports whether the connection survives.
func (c *session) handle(ctx context.Context, req wire.Request) bool {
	if !c.registered && req.Kind != wire.KindRegister {
		c.reply(req, wire.ErrResponse(req.CallbackID, domain.ErrNotRegistered.Error()))
		c.logger.WarnContext(ctx, "request before register",
			slog.String("kind", string(req.Kind)),
		)
		return false
	}

	switch req.Kind {
	case wire.KindRegister:
		return c.handleRegister(ctx, req)
	case wire.KindSubmitOrder:
		return c.handleSubmit(req)
	case wire.KindCancelOrder:
		return c.handleCancel(ctx, req)
	case wire.KindUpdateBrackets:
		return c.handleUpdateBrackets(req)
	case wire.KindRegisterStreamer:
		return c.handleRegisterStreamer(ctx, req)
	default:
		c.reply(req, wire.ErrResponse(req.CallbackID, domain.ErrUnknownRequest.Error()))
		return false
	}
}

func (c *session) handleRegister(ctx context.Context, req wire.Request) bool {
	var payload wire.RegisterPayload
	if err := wire.DecodePayload(req, &payload); err != nil {
		c.reply(req, wire.ErrResponse(req.CallbackID, err.Error()))
		return false
	}

	mode, err := domain.ParseRunMode(payload.Mode)
	if err != nil {
		c.reply(req, wire.ErrResponse(req.CallbackID, err.Error()))
		return false
	}

	c.registered = true
	c.account = payload.Account
	c.mode = mode

	c.logger.InfoContext(ctx, "strategy registered",
		slog.String("account", payload.Account),
		slog.String("mode", string(mode)),
	)

	return c.replyOK(req, map[string]string{"mode": string(mode)})
}

func (c *session) handleSubmit(req wire.Request) bool {
	var payload wire.SubmitOrderPayload
	if err := wire.DecodePayload(req, &payload); err != nil {
		c.reply(req, wire.ErrResponse(req.CallbackID, err.Error()))
		return false
	}

	o := payload.Order
	if o.Account == "" {
		o.Account = c.account
	}

	if err := c.srv.queue.Submit(&o, time.Now().UTC()); err != nil {
		c.reply(req, wire.ErrResponse(req.CallbackID, err.Error()))
		return true
	}

	return c.replyOK(req, map[string]string{"order_id": o.ID})
}

func (c *session) handleCancel(ctx context.Context, req wire.Request) bool {
	var payload wire.CancelOrderPayload
	if err := wire.DecodePayload(req, &payload); err != nil {
		c.reply(req, wire.ErrResponse(req.CallbackID, err.Error()))
		return false
	}

	now := time.Now().UTC()
	o, err := c.srv.queue.Cancel(payload.OrderID, now)
	if err != nil {
		c.reply(req, wire.ErrResponse(req.CallbackID, err.Error()))
		return true
	}

	c.srv.publishOrder(ctx, domain.OrderUpdateEvent{
		Kind:  domain.OrderCancelled,
		Order: *o,
		At:    now,
	})

	return c.replyOK(req, map[string]string{"order_id": o.ID})
}

func (c *session) handleUpdateBrackets(req wire.Request) bool {
	var payload wire.UpdateBracketsPayload
	if err := wire.DecodePayload(req, &payload); err != nil {
		c.reply(req, wire.ErrResponse(req.CallbackID, err.Error()))
		return false
	}

	account := payload.Account
	if account == "" {
		account = c.account
	}

	o := domain.Order{
		Account:    account,
		SymbolCode: payload.SymbolCode,
		Symbol:     payload.SymbolCode,
		Type:       domain.OrderTypeUpdateBrackets,
		Brackets:   payload.Brackets,
	}

	if err := c.srv.queue.Submit(&o, time.Now().UTC()); err != nil {
		c.reply(req, wire.ErrResponse(req.CallbackID, err.Error()))
		return true
	}

	return c.replyOK(req, map[string]string{"order_id": o.ID})
}

func (c *session) handleRegisterStreamer(ctx context.Context, req wire.Request) bool {
	var payload wire.RegisterStreamerPayload
	if err := wire.DecodePayload(req, &payload); err != nil {
		c.reply(req, wire.ErrResponse(req.CallbackID, err.Error()))
		return false
	}
	if c.srv.slices == nil {
		c.reply(req, wire.ErrResponse(req.CallbackID, "streaming not available"))
		return true
	}
	if payload.IntervalMS <= 0 {
		c.reply(req, wire.ErrResponse(req.CallbackID, "streamer interval must be positive"))
		return true
	}

	account := payload.Account
	if account == "" {
		account = c.account
	}

	// One streamer per connection; a repeated registration replaces it.
	if c.streamerCancel != nil {
		c.streamerCancel()
	}
	streamCtx, cancel := context.WithCancel(ctx)
	c.streamerCancel = cancel

	go c.streamSlices(streamCtx, account, time.Duration(payload.IntervalMS)*time.Millisecond)

	return c.replyOK(req, map[string]string{"status": "streaming"})
}

// streamSlices pushes one-way consolidated slices at the requested cadence
// until the stream context ends or a write fails.
func (c *session) streamSlices(ctx context.Context, account string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slice, err := c.srv.slices.ConsolidatedSlice(ctx, account)
			if err != nil {
				c.logger.WarnContext(ctx, "slice unavailable", slog.String("error", err.Error()))
				continue
			}

			resp, err := wire.OKResponse(0, nil)
			if err != nil {
				continue
			}
			resp.Payload = slice

			if !c.reply(wire.Request{}, resp) {
				return
			}
		}
	}
}

func (c *session) replyOK(req wire.Request, payload any) bool {
	resp, err := wire.OKResponse(req.CallbackID, payload)
	if err != nil {
		resp = wire.ErrResponse(req.CallbackID, err.Error())
	}
	return c.reply(req, resp)
}

// reply writes a response frame unless the request was one-way. A pushed
// message (zero callback) is always written.
func (c *session) reply(req wire.Request, resp wire.Response) bool {
	if req.Kind != "" && req.OneWay() {
		return true
	}

	raw, err := wire.EncodeResponse(resp)
	if err != nil {
		c.logger.Warn("encode response failed", slog.String("error", err.Error()))
		return true
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := wire.WriteFrame(c.conn, raw); err != nil {
		c.logger.Warn("write failed, dropping connection", slog.String("error", err.Error()))
		return false
	}
	return true
}

func (s *Server) publishOrder(ctx context.Context, evt domain.OrderUpdateEvent) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.WarnContext(ctx, "marshal order event failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelOrders, payload); err != nil {
		s.logger.WarnContext(ctx, "publish order event failed", slog.String("error", err.Error()))
	}
}
