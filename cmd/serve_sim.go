// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/helirig/pkg/rig"
	"github.com/Thermoquad/helirig/pkg/rigproto"
	"github.com/Thermoquad/helirig/pkg/sim"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serveListen string
	servePath   string
)

var serveSimCmd = &cobra.Command{
	Use:   "serve-sim",
	Short: "Serve a simulated bridge over WebSocket",
	Long: `Expose a simulated rig and bridge board on a WebSocket endpoint.

Point "helirig run --url ws://host:port/path" at it to fly the simulator
through the real transport. Every connection gets a fresh rig at rest.

If HELIRIG_PASSWORD is set, clients must present HTTP Basic auth with that
password (and --username, when given).

Single-letter commands on stdin work the controls of the newest rig; see
"helirig sim --help".`,
	RunE: runServeSim,
}

func init() {
	rootCmd.AddCommand(serveSimCmd)
	addPlantFlags(serveSimCmd)
	serveSimCmd.Flags().StringVar(&serveListen, "listen", ":8080", "Address to listen on")
	serveSimCmd.Flags().StringVar(&servePath, "path", "/ws", "WebSocket endpoint path")
}

// simServer hands each WebSocket client its own simulated rig.
type simServer struct {
	ctx      context.Context
	logger   *logrus.Logger
	params   sim.Params
	switchOn bool
	username string
	password string
	upgrader websocket.Upgrader

	mu      sync.Mutex
	current *sim.Rig
	wg      sync.WaitGroup
}

func newSimServer(ctx context.Context, params sim.Params, logger *logrus.Logger) *simServer {
	return &simServer{
		ctx:    ctx,
		logger: logger,
		params: params,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *simServer) authorized(r *http.Request) bool {
	if s.password == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	if s.username != "" && subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) != 1 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) == 1
}

func (s *simServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="helirig"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	conn := rig.NewWebSocketConn(ws)
	simRig := sim.NewRig(conn, sim.NewPlant(s.params), s.logger)
	s.setCurrent(simRig)

	log := s.logger.WithField("remote", r.RemoteAddr)
	log.Info("Client connected")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.Close()

		if s.switchOn {
			if err := simRig.SetSwitch(true); err != nil {
				log.WithError(err).Warn("Failed to set switch")
			}
		}
		if err := simRig.Run(s.ctx); err != nil && !errors.Is(err, rig.ErrConnectionClosed) {
			log.WithError(err).Warn("Simulator stopped")
		}
		log.Info("Client disconnected")
	}()
}

func (s *simServer) setCurrent(r *sim.Rig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = r
}

// ToggleSwitch and Press drive the newest rig.

func (s *simServer) ToggleSwitch() error {
	r, err := s.currentRig()
	if err != nil {
		return err
	}
	return r.ToggleSwitch()
}

func (s *simServer) Press(b rigproto.Button) error {
	r, err := s.currentRig()
	if err != nil {
		return err
	}
	return r.Press(b)
}

func (s *simServer) currentRig() (*sim.Rig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, errors.New("no client connected")
	}
	return s.current, nil
}

func runServeSim(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	params, err := plantParams()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := newSimServer(ctx, params, logger)
	srv.switchOn = simSwitchOn
	srv.username = wsUsername
	srv.password = os.Getenv("HELIRIG_PASSWORD")

	mux := http.NewServeMux()
	mux.Handle(servePath, srv)
	httpServer := &http.Server{
		Addr:              serveListen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go readOperatorCommands(os.Stdin, srv, logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	logger.WithFields(logrus.Fields{
		"listen": serveListen,
		"path":   servePath,
		"auth":   srv.password != "",
	}).Info("Serving simulated bridge")

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Shutdown incomplete")
	}
	srv.wg.Wait()
	return nil
}
