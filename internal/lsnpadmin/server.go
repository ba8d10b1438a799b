/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package lsnpadmin

import (
	"context"
	"net"
	"net/http"
	"time"

	ginsdk "github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nabbar/lsnp/internal/lsnperr"
	"github.com/nabbar/lsnp/internal/lsnplog"
	"github.com/nabbar/lsnp/pkg/directory"
	"github.com/nabbar/lsnp/pkg/group"
)

// PeerView and GroupView are the JSON shapes /debug/state renders —
// deliberately narrower than directory.Record/group.Group (no avatar
// bytes, no internal mutex state) since this endpoint is for a human
// glancing at peer/group/transfer/game occupancy, not a wire format.
type PeerView struct {
	UserID      string    `json:"user_id"`
	Addr        string    `json:"addr"`
	DisplayName string    `json:"display_name,omitempty"`
	Status      string    `json:"status,omitempty"`
	LastSeen    time.Time `json:"last_seen"`
}

type GroupView struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Owner   string   `json:"owner"`
	Members []string `json:"members"`
}

type stateView struct {
	Peers           []PeerView  `json:"peers"`
	Groups          []GroupView `json:"groups"`
	ActiveTransfers int         `json:"active_transfers"`
	ActiveGames     int         `json:"active_games"`
}

// StateProvider supplies the live snapshot /debug/state renders. A
// Dispatcher satisfies this structurally (Peers/Groups/ActiveTransfers/
// ActiveGames are already exported for exactly this purpose), the same
// boundary pattern as dispatcher.Recorder — this package never imports
// pkg/dispatcher.
type StateProvider interface {
	Peers() []directory.Record
	Groups() []*group.Group
	ActiveTransfers() int
	ActiveGames() int
}

// Server is the loopback-only debug HTTP endpoint. It is never started
// unless a peer configures AdminAddr, matching the "default off" posture
// of SPEC_FULL.md §C.2.
type Server struct {
	log   lsnplog.Logger
	http  *http.Server
	ln    net.Listener
	state StateProvider
}

// NewServer validates addr is loopback-only and binds a listener for it
// (addr may use port 0; call Addr() afterward for the resolved address),
// exposing GET /debug/state and GET /metrics. It does not start serving
// requests yet — call Run.
func NewServer(addr string, metrics *Metrics, state StateProvider, log lsnplog.Logger) (*Server, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, lsnperr.Wrap(lsnperr.LocalIOError, "parse admin addr "+addr, err)
	}
	ip := net.ParseIP(host)
	if host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return nil, lsnperr.New(lsnperr.Unauthorized, "admin addr "+addr+" is not loopback-only")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, lsnperr.Wrap(lsnperr.LocalIOError, "bind admin addr "+addr, err)
	}

	ginsdk.SetMode(ginsdk.ReleaseMode)
	router := ginsdk.New()
	router.Use(ginsdk.Recovery())

	s := &Server{log: log, ln: ln, state: state}
	router.GET("/debug/state", s.handleState)
	router.GET("/metrics", ginsdk.WrapH(promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{})))

	s.http = &http.Server{Handler: router}
	return s, nil
}

// Addr returns the bound address, resolved even when addr passed 0 as
// the port.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) handleState(c *ginsdk.Context) {
	peers := s.state.Peers()
	pv := make([]PeerView, 0, len(peers))
	for _, p := range peers {
		pv = append(pv, PeerView{
			UserID:      p.UserID,
			Addr:        p.Addr,
			DisplayName: p.DisplayName,
			Status:      p.Status,
			LastSeen:    p.LastSeen,
		})
	}

	groups := s.state.Groups()
	gv := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		members := make([]string, 0, len(g.Members))
		for m := range g.Members {
			members = append(members, m)
		}
		gv = append(gv, GroupView{ID: g.ID, Title: g.Title, Owner: g.Owner, Members: members})
	}

	c.JSON(http.StatusOK, stateView{
		Peers:           pv,
		Groups:          gv,
		ActiveTransfers: s.state.ActiveTransfers(),
		ActiveGames:     s.state.ActiveGames(),
	})
}

// Run blocks serving until ctx is canceled, then shuts the HTTP server
// down gracefully (spec.md §5 graceful-shutdown convention, extended to
// this optional surface).
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("admin HTTP listening", lsnplog.Fields{"addr": s.Addr()})
		if err := s.http.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			errCh <- lsnperr.Wrap(lsnperr.LocalIOError, "admin http serve", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return lsnperr.Wrap(lsnperr.LocalIOError, "admin http shutdown", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
