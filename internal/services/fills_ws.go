package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/pkg/logger"
)

const (
	fillPingInterval          = 30 * time.Second
	fillReconnectInitialDelay = 1 * time.Second
	fillReconnectMaxDelay     = 30 * time.Second
)

// FillStream subscribes to the execution venue's websocket fill feed
// so position state stays current between ticks.
type FillStream struct {
	url    string
	logger *logger.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	onFill func(contracts.FillEvent)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewFillStream creates a fill stream client. An empty URL disables it.
func NewFillStream(url string, log *logger.Logger) *FillStream {
	return &FillStream{
		url:    url,
		logger: log,
		stopCh: make(chan struct{}),
	}
}

// OnFill registers the fill callback. Must be set before Start.
func (s *FillStream) OnFill(fn func(contracts.FillEvent)) {
	s.onFill = fn
}

// Enabled reports whether a stream URL was configured.
func (s *FillStream) Enabled() bool {
	return s.url != ""
}

// Start connects and begins the read and ping loops. Connection
// failures reconnect with exponential backoff; the stream is a
// freshness optimization, so failures never fail the cycle.
func (s *FillStream) Start(ctx context.Context) error {
	if !s.Enabled() {
		s.logger.Debug("Fill stream disabled, no URL configured")
		return nil
	}

	if err := s.connect(ctx); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.readLoop(ctx)

	s.wg.Add(1)
	go s.pingLoop()

	s.logger.WithField("url", s.url).Info("Fill stream connected")
	return nil
}

// Stop closes the connection and waits for loops to end.
func (s *FillStream) Stop() {
	if !s.Enabled() {
		return
	}

	close(s.stopCh)

	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	s.logger.Info("Fill stream stopped")
}

func (s *FillStream) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

func (s *FillStream) readLoop(ctx context.Context) {
	defer s.wg.Done()

	delay := fillReconnectInitialDelay

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			case <-time.After(delay):
			}

			if delay *= 2; delay > fillReconnectMaxDelay {
				delay = fillReconnectMaxDelay
			}

			if rerr := s.connect(ctx); rerr != nil {
				s.logger.WithError(rerr).Warn("Fill stream reconnect failed")
			} else {
				s.logger.Info("Fill stream reconnected")
				delay = fillReconnectInitialDelay
			}
			continue
		}

		var event contracts.FillEvent
		if err := json.Unmarshal(data, &event); err != nil {
			s.logger.WithError(err).Warn("Fill stream message decode failed")
			continue
		}

		if s.onFill != nil {
			s.onFill(event)
		}
	}
}

func (s *FillStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(fillPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			s.connMu.Unlock()
			if conn != nil {
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}
}
