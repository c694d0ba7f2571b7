package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/logging"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/metrics"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
	"github.com/chenzhangda16/web3-riskpipe/pkg/retry"
)

// subscribeMsg is the handshake sent after the socket opens.
type subscribeMsg struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
}

const pendingTopic = "pending_txs"

// MempoolSubscriber streams pending transactions over a websocket. On
// disconnect it reconnects with exponential backoff (reset after a
// successful session); after MaxRetries consecutive failures it gives
// up and returns the last error as a fatal signal.
type MempoolSubscriber struct {
	cfg config.ConnectorsConfig
	out Output
	met *metrics.Metrics

	backoff retry.Policy

	now func() int64
	log zerolog.Logger
}

func NewMempoolSubscriber(cfg config.ConnectorsConfig, out Output, met *metrics.Metrics) *MempoolSubscriber {
	return &MempoolSubscriber{
		cfg: cfg,
		out: out,
		met: met,
		backoff: retry.Policy{
			BaseDelay: 2 * time.Second,
			MaxDelay:  60 * time.Second,
			Jitter:    500 * time.Millisecond,
		},
		now: func() int64 { return time.Now().Unix() },
		log: logging.For("mempool"),
	}
}

func (s *MempoolSubscriber) Run(ctx context.Context) error {
	attempt := 0
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		gotData, err := s.session(ctx)
		s.met.SetMempoolUp(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if gotData {
			// successful session: backoff starts over
			attempt = 0
		}
		lastErr = err
		s.met.ConnectionError()

		attempt++
		if s.cfg.MaxRetries > 0 && attempt >= s.cfg.MaxRetries {
			return fmt.Errorf("mempool: giving up after %d reconnect attempts: %w", attempt, lastErr)
		}

		wait := s.backoff.Delay(attempt)
		s.log.Warn().Int("attempt", attempt).Dur("backoff", wait).Err(err).Msg("stream lost, reconnecting")
		if err := retry.Sleep(ctx, s.backoff, attempt); err != nil {
			return err
		}
	}
}

// session runs one connect-subscribe-read loop. gotData reports whether
// at least one message was decoded, which counts as a successful session
// and resets the reconnect backoff.
func (s *MempoolSubscriber) session(ctx context.Context) (gotData bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.MempoolWSURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMsg{Op: "subscribe", Topic: pendingTopic}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info().Str("url", s.cfg.MempoolWSURL).Msg("subscribed to pending stream")
	s.met.SetMempoolUp(true)

	// unblock ReadMessage on cancellation
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return gotData, fmt.Errorf("read: %w", err)
		}

		var tx model.Tx
		if err := json.Unmarshal(raw, &tx); err != nil || tx.Hash == "" {
			s.log.Warn().Err(err).Msg("dropping malformed pending message")
			continue
		}
		if tx.Timestamp == 0 {
			tx.Timestamp = s.now()
		}
		gotData = true
		s.met.MempoolMessage()
		s.out.Enqueue(tx)
	}
}
