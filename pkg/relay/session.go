// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultCloseTimeout     = 5 * time.Second
	controlWriteWait        = time.Second
)

// ErrEmptyPrompt rejects a request before any upstream connection is made.
var ErrEmptyPrompt = errors.New("prompt is required and must be a string")

// State is the lifecycle phase of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Target describes the upstream WebSocket to dial.
type Target struct {
	URL    *url.URL
	Header http.Header
	// Via names the intermediary the connection goes through, if any. It is
	// echoed in the downstream "connected" frame.
	Via string
}

// Options tunes a Session.
type Options struct {
	Dialer       *websocket.Dialer
	Instructions string
	// SessionTimeout bounds the whole relay; zero disables the bound.
	SessionTimeout time.Duration
	// CloseTimeout bounds the wait for the upstream close frame after the
	// response is done.
	CloseTimeout time.Duration
	Logger       zerolog.Logger
}

// Session relays one upstream realtime connection to one downstream event
// stream. A Session is single use and not safe for concurrent use.
type Session struct {
	id     string
	target Target
	opts   Options
	stream *eventStream
	logger zerolog.Logger

	state          State
	conn           *websocket.Conn
	closeSent      bool
	upstreamClosed bool
}

type inboundFrame struct {
	data []byte
	err  error
}

// NewSession prepares a session writing to w. The writer must support
// flushing.
func NewSession(w http.ResponseWriter, target Target, opts Options) (*Session, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}
	if target.URL == nil {
		return nil, errors.New("upstream url is required")
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = defaultCloseTimeout
	}

	id := uuid.NewString()
	logger := opts.Logger.With().
		Str("session_id", id).
		Str("upstream_host", target.URL.Host).
		Logger()

	return &Session{
		id:     id,
		target: target,
		opts:   opts,
		stream: &eventStream{w: w, flusher: flusher, logger: logger},
		logger: logger,
		state:  StateIdle,
	}, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	return s.state
}

// Run drives the session until it reaches StateClosed. Cancelling ctx means
// the client went away. Only ErrEmptyPrompt is returned; every other failure
// is reported to the client as an error frame.
func (s *Session) Run(ctx context.Context, prompt string) error {
	if prompt == "" {
		return ErrEmptyPrompt
	}
	if s.state != StateIdle {
		return fmt.Errorf("session already %s", s.state)
	}

	clientCtx := ctx
	if s.opts.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SessionTimeout)
		defer cancel()
	}

	s.transition(StateConnecting)
	s.stream.open()

	conn, resp, err := s.opts.Dialer.DialContext(ctx, s.target.URL.String(), s.target.Header)
	if err != nil {
		event := s.logger.Error().Err(err)
		if resp != nil {
			event = event.Int("status", resp.StatusCode)
		}
		event.Msg("upstream dial failed")
		if clientCtx.Err() != nil {
			s.abandon()
			return nil
		}
		s.fail(fmt.Errorf("dial upstream: %w", err))
		return nil
	}
	s.conn = conn
	defer s.closeUpstream()

	s.transition(StateStreaming)
	if !s.stream.writeJSON(connectedFrame{Type: FrameConnected, Via: s.target.Via}) {
		s.abandon()
		return nil
	}

	for _, msg := range setupMessages(s.opts.Instructions, prompt) {
		if err := conn.WriteJSON(msg); err != nil {
			s.fail(fmt.Errorf("send setup message: %w", err))
			return nil
		}
	}
	s.logger.Debug().Msg("setup messages sent")

	inbound := make(chan inboundFrame)
	done := make(chan struct{})
	defer close(done)
	go readLoop(conn, inbound, done)

	s.relay(ctx, clientCtx, inbound)
	return nil
}

func (s *Session) relay(ctx, clientCtx context.Context, inbound <-chan inboundFrame) {
	var closeTimer *time.Timer
	var closeWait <-chan time.Time
	defer func() {
		if closeTimer != nil {
			closeTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if clientCtx.Err() != nil {
				s.logger.Info().Msg("client disconnected")
				s.abandon()
				return
			}
			s.fail(fmt.Errorf("session exceeded %s", s.opts.SessionTimeout))
			return

		case <-closeWait:
			s.logger.Warn().Dur("close_timeout", s.opts.CloseTimeout).Msg("upstream did not acknowledge close")
			s.finish(websocket.CloseAbnormalClosure)
			return

		case frame := <-inbound:
			if frame.err != nil {
				s.handleReadError(frame.err)
				return
			}
			if s.state == StateClosing {
				s.logger.Debug().Msg("dropping upstream frame received while closing")
				continue
			}

			payload, eventType, err := decodeEvent(frame.data)
			if err != nil {
				s.logger.Warn().Err(err).Msg("malformed upstream frame")
				if !s.stream.writeJSON(errorFrame{Type: FrameError, Error: err.Error()}) {
					s.abandon()
					return
				}
				continue
			}

			s.logger.Debug().Str("event_type", eventType).Msg("received upstream event")
			if !s.stream.writeFrame(payload) {
				s.logger.Info().Msg("client disconnected")
				s.abandon()
				return
			}

			if eventType == EventResponseDone {
				s.logger.Info().Msg("response complete, closing upstream")
				if !s.beginClose() {
					return
				}
				closeTimer = time.NewTimer(s.opts.CloseTimeout)
				closeWait = closeTimer.C
			}
		}
	}
}

func (s *Session) handleReadError(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		s.upstreamClosed = true
		s.logger.Info().
			Int("code", closeErr.Code).
			Str("reason", closeErr.Text).
			Msg("upstream closed")
		s.finish(closeErr.Code)
		return
	}
	if s.state == StateClosing {
		s.logger.Debug().Err(err).Msg("upstream torn down while closing")
		s.finish(websocket.CloseAbnormalClosure)
		return
	}
	s.fail(fmt.Errorf("read upstream: %w", err))
}

// beginClose sends a normal close frame upstream. It reports false when the
// session had to finish immediately instead.
func (s *Session) beginClose() bool {
	s.transition(StateClosing)
	s.closeSent = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait)); err != nil {
		s.logger.Warn().Err(err).Msg("send close frame failed")
		s.finish(websocket.CloseAbnormalClosure)
		return false
	}
	return true
}

// finish reports the upstream close code and ends the stream.
func (s *Session) finish(code int) {
	s.transition(StateClosing)
	s.stream.writeJSON(closedFrame{Type: FrameClosed, Code: code})
	s.stream.end()
	s.transition(StateClosed)
}

// fail reports a transport error and ends the stream.
func (s *Session) fail(err error) {
	s.logger.Error().Err(err).Msg("relay failed")
	s.transition(StateClosing)
	s.stream.writeJSON(errorFrame{Type: FrameError, Error: err.Error()})
	s.stream.end()
	s.transition(StateClosed)
}

// abandon ends the session after the client is gone; nothing more is written.
func (s *Session) abandon() {
	s.stream.end()
	s.transition(StateClosing)
	s.transition(StateClosed)
}

func (s *Session) closeUpstream() {
	if s.conn == nil {
		return
	}
	if !s.upstreamClosed && !s.closeSent {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait))
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("close upstream connection failed")
	}
	s.upstreamClosed = true
}

func (s *Session) transition(next State) {
	if s.state == next {
		return
	}
	s.logger.Debug().
		Str("from", s.state.String()).
		Str("to", next.String()).
		Msg("session state change")
	s.state = next
}

// readLoop feeds upstream frames to out until a read fails or done closes.
func readLoop(conn *websocket.Conn, out chan<- inboundFrame, done <-chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		select {
		case out <- inboundFrame{data: data, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}
