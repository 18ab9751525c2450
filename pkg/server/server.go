// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package server wires the relay routes: two JSON probes, a one-shot chat
// completion through the intermediary, and the two realtime relays.
package server

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/go-core-stack/realtime-relay/pkg/auth"
	"github.com/go-core-stack/realtime-relay/pkg/config"
	"github.com/go-core-stack/realtime-relay/pkg/forward"
	"github.com/go-core-stack/realtime-relay/pkg/relay"
)

const (
	intermediaryName = "lava"
	haikuPrompt      = "Write me a haiku about coding."
	maxRequestBody   = 1 << 20
)

// Server routes client requests to the relay components.
type Server struct {
	cfg     config.Config
	router  *mux.Router
	forward *forward.Client
	dialer  *websocket.Dialer
	logger  zerolog.Logger
	now     func() time.Time
}

// New builds the route table from cfg.
func New(cfg config.Config) *Server {
	s := &Server{
		cfg:     cfg,
		router:  mux.NewRouter(),
		forward: forward.New(cfg),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, // nolint:gosec -- opt-in for development scenarios
			},
		},
		logger: log.With().Str("component", "server").Logger(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}

	s.router.Use(s.logRequests)
	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/haiku", s.handleHaiku).Methods(http.MethodGet)
	s.router.HandleFunc("/realtime", s.handleRealtime).Methods(http.MethodPost)
	s.router.HandleFunc("/realtime-lava", s.handleRealtimeForward).Methods(http.MethodPost)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the realtime relay!"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339Nano),
	})
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type haikuResponse struct {
	Haiku *string    `json:"haiku,omitempty"`
	Debug haikuDebug `json:"debug"`
}

type haikuDebug struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// handleHaiku sends a fixed chat completion through the intermediary and
// extracts the first choice.
func (s *Server) handleHaiku(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	token, err := s.forwardToken(logger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	body, err := json.Marshal(chatRequest{
		Model:    s.cfg.ChatModel,
		Messages: []chatMessage{{Role: "user", Content: haikuPrompt}},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp, err := s.forward.PostJSON(r.Context(), s.cfg.ChatURL, token, body)
	if err != nil {
		logger.Error().Err(err).Msg("haiku request failed")
		writeError(w, forward.StatusCode(err), err)
		return
	}
	if !gjson.ValidBytes(resp.Body) {
		err := errors.New("upstream returned a non-JSON body")
		logger.Error().Int("status", resp.Status).Msg(err.Error())
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := haikuResponse{Debug: haikuDebug{Status: resp.Status, Data: resp.Body}}
	if content := gjson.GetBytes(resp.Body, "choices.0.message.content"); content.Exists() {
		haiku := content.String()
		out.Haiku = &haiku
	}
	logger.Info().Int("status", resp.Status).Bool("has_haiku", out.Haiku != nil).Msg("haiku received")

	writeJSON(w, http.StatusOK, out)
}

// handleRealtime relays straight to the completion service.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	prompt, ok := readPrompt(w, r)
	if !ok {
		return
	}

	header := make(http.Header)
	auth.AttachBearer(header, s.cfg.ProviderKey)
	auth.AttachRealtimeBeta(header)

	s.serveRelay(w, r, prompt, relay.Target{URL: s.cfg.RealtimeURL, Header: header})
}

// handleRealtimeForward relays through the intermediary, which attaches the
// provider credentials itself.
func (s *Server) handleRealtimeForward(w http.ResponseWriter, r *http.Request) {
	prompt, ok := readPrompt(w, r)
	if !ok {
		return
	}

	token, err := s.forwardToken(zerolog.Ctx(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	header := make(http.Header)
	auth.AttachBearer(header, token)
	auth.AttachRealtimeBeta(header)

	s.serveRelay(w, r, prompt, relay.Target{
		URL:    forward.WebSocketURL(s.cfg.ForwardURL, s.cfg.RealtimeURL),
		Header: header,
		Via:    intermediaryName,
	})
}

func (s *Server) serveRelay(w http.ResponseWriter, r *http.Request, prompt string, target relay.Target) {
	logger := zerolog.Ctx(r.Context())

	session, err := relay.NewSession(w, target, relay.Options{
		Dialer:         s.dialer,
		Instructions:   s.cfg.Instructions,
		SessionTimeout: s.cfg.SessionTimeout,
		CloseTimeout:   s.cfg.CloseTimeout,
		Logger:         *logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("create relay session failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	start := time.Now()
	logger.Info().
		Str("session_id", session.ID()).
		Str("upstream", target.URL.Redacted()).
		Int("prompt_length", len(prompt)).
		Msg("relay session started")

	if err := session.Run(r.Context(), prompt); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	logger.Info().
		Str("session_id", session.ID()).
		Dur("duration", time.Since(start)).
		Msg("relay session ended")
}

func (s *Server) forwardToken(logger *zerolog.Logger) (string, error) {
	creds := auth.NewCredentials(s.cfg)
	logger.Debug().Object("token_payload", creds).Msg("building forward token")

	token, err := creds.Encode()
	if err != nil {
		return "", err
	}
	logger.Debug().Str("token_preview", auth.TokenPreview(token)).Msg("forward token generated")
	return token, nil
}

// readPrompt extracts a non-empty string "prompt" from a JSON or form body,
// replying 400 when it is absent.
func readPrompt(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var prompt string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err == nil {
			if values := r.PostForm["prompt"]; len(values) == 1 {
				prompt = values[0]
			}
		}
	} else {
		body, err := io.ReadAll(r.Body)
		if err == nil && gjson.ValidBytes(body) {
			if field := gjson.GetBytes(body, "prompt"); field.Type == gjson.String {
				prompt = field.String()
			}
		}
	}

	if prompt == "" {
		writeError(w, http.StatusBadRequest, relay.ErrEmptyPrompt)
		return "", false
	}
	return prompt, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write json response failed")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
