// Package transport connects the debugger to its controller.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ErrMaxAttempts is returned when every connection attempt failed.
var ErrMaxAttempts = errors.New("max connection attempts reached")

// Dialer opens the byte stream to the controller, retrying with exponential
// backoff.
type Dialer struct {
	Debug       bool
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Header is sent with websocket handshakes.
	Header http.Header
	// KeepAlive is the websocket ping interval; zero disables pings.
	KeepAlive time.Duration

	connect func(ctx context.Context, addr string) (io.ReadWriteCloser, error)
}

// NewDialer creates a dialer with the default retry policy.
func NewDialer(debug bool) *Dialer {
	return &Dialer{
		Debug:       debug,
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		KeepAlive:   30 * time.Second,
	}
}

// Dial connects to addr. ws:// and wss:// URLs use a websocket; anything else
// is a TCP host:port.
func (d *Dialer) Dial(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	connect := d.connect
	if connect == nil {
		connect = d.connectOnce
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		conn, err := connect(ctx, addr)
		if err == nil {
			if d.Debug {
				log.Printf("[AIVory Debugger] Connected to %s", addr)
			}
			return conn, nil
		}
		lastErr = err

		if d.Debug {
			log.Printf("[AIVory Debugger] Connection error: %v", err)
		}
		if attempt >= d.MaxAttempts {
			log.Println("[AIVory Debugger] Max reconnect attempts reached")
			return nil, fmt.Errorf("%w: %v", ErrMaxAttempts, lastErr)
		}

		delay := d.backoff(attempt)
		if d.Debug {
			log.Printf("[AIVory Debugger] Reconnecting in %v (attempt %d)", delay, attempt)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff returns the delay after the given failed attempt.
func (d *Dialer) backoff(attempt int) time.Duration {
	delay := d.BaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > d.MaxDelay || delay <= 0 {
		delay = d.MaxDelay
	}
	return delay
}

func (d *Dialer) connectOnce(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return DialWebSocket(ctx, addr, d.Header, d.KeepAlive)
	}
	var nd net.Dialer
	return nd.DialContext(ctx, "tcp", addr)
}

// DialWebSocket opens a websocket to url and wraps it as a byte stream.
func DialWebSocket(ctx context.Context, url string, header http.Header, keepAlive time.Duration) (*WebSocketStream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	s := NewWebSocketStream(conn)
	if keepAlive > 0 {
		go s.ping(keepAlive)
	}
	return s, nil
}
