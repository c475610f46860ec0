// Package server owns the listening sockets: the TCP control listener and
// the UDP stroke socket share one port, and a small HTTP status surface
// rides alongside.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/drawguess-server/internal/config"
	"github.com/scythe504/drawguess-server/internal/game"
	"github.com/scythe504/drawguess-server/internal/store"
)

type Server struct {
	cfg    config.Config
	engine *game.Engine
	repo   store.Repository

	tcpLn   net.Listener
	udpConn *net.UDPConn
}

func New(cfg config.Config, engine *game.Engine, repo store.Repository) *Server {
	return &Server{cfg: cfg, engine: engine, repo: repo}
}

// Run binds both sockets, starts the engine background work, and accepts
// connections until ctx is cancelled. On cancel every listener and session
// connection is closed so blocked reads unwind.
func (s *Server) Run(ctx context.Context) error {
	var err error
	s.tcpLn, err = net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("server: tcp listen: %w", err)
	}
	s.udpConn, err = net.ListenUDP("udp", &net.UDPAddr{Port: s.cfg.Port})
	if err != nil {
		s.tcpLn.Close()
		return fmt.Errorf("server: udp listen: %w", err)
	}
	s.engine.SetDatagramSender(s.udpConn)

	log.Info().Int("port", s.cfg.Port).Msg("[Server.Run] listening (tcp+udp)")

	go s.engine.Run(ctx)
	go s.readDatagrams(ctx)

	var httpSrv *http.Server
	if s.cfg.HTTPAddr != "" {
		httpSrv = &http.Server{Addr: s.cfg.HTTPAddr, Handler: s.RegisterRoutes()}
		go func() {
			log.Info().Str("addr", s.cfg.HTTPAddr).Msg("[Server.Run] status routes up")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn().Err(err).Msg("[Server.Run] status server stopped")
			}
		}()
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("[Server.Run] shutting down")
		s.tcpLn.Close()
		s.udpConn.Close()
		if httpSrv != nil {
			shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			_ = httpSrv.Shutdown(shCtx)
			cancel()
		}
		s.closeSessions()
	}()

	s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.tcpLn.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("[acceptLoop] accept failed")
			continue
		}

		client := s.engine.Clients.Add(conn)
		if client == nil {
			// Every slot taken: refuse by closing, the client sees EOF.
			log.Warn().Str("remote", conn.RemoteAddr().String()).
				Msg("[acceptLoop] client limit reached, refusing connection")
			conn.Close()
			continue
		}

		log.Info().Int("client", client.ID).Str("remote", conn.RemoteAddr().String()).
			Msg("[acceptLoop] client connected")
		go s.handleSession(ctx, client)
	}
}

// readDatagrams is the single UDP reader; each packet is copied out of the
// shared buffer before the engine sees it.
func (s *Server) readDatagrams(ctx context.Context) {
	buf := make([]byte, 1024)
	for {
		n, addr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("[readDatagrams] read failed")
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		s.engine.HandleDatagram(pkt, addr)
	}
}

func (s *Server) closeSessions() {
	s.engine.Clients.Mu.Lock()
	defer s.engine.Clients.Mu.Unlock()
	for _, c := range s.engine.Clients.Clients {
		if c != nil && c.Conn != nil {
			c.Conn.Close()
		}
	}
}
