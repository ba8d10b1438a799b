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

// Package lsnpadmin is the optional loopback-only debug HTTP and metrics
// surface (SPEC_FULL.md §C.2): never required for protocol correctness,
// bound only when a peer is started with an AdminAddr configured.
package lsnpadmin

import "github.com/prometheus/client_golang/prometheus"

// Metrics registers and updates every gauge/counter this surface exposes.
// It satisfies dispatcher.Recorder structurally — the dispatcher package
// never imports this one.
type Metrics struct {
	registry *prometheus.Registry

	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec

	activeTransfers prometheus.Gauge
	activeGames     prometheus.Gauge
	peerCount       prometheus.Gauge
}

// NewMetrics builds a fresh registry with every collector registered. A
// dedicated registry (rather than prometheus.DefaultRegisterer) keeps two
// Metrics instances in the same test process from colliding.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lsnp",
			Name:      "frames_sent_total",
			Help:      "Frames sent, by TYPE.",
		}, []string{"type"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lsnp",
			Name:      "frames_received_total",
			Help:      "Frames received and accepted, by TYPE.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lsnp",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped before routing, by reason (malformed, invalid, unauthorized).",
		}, []string{"reason"}),
		activeTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lsnp",
			Name:      "active_transfers",
			Help:      "File transfers currently in flight.",
		}),
		activeGames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lsnp",
			Name:      "active_games",
			Help:      "Tic-tac-toe sessions currently active or pending accept.",
		}),
		peerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lsnp",
			Name:      "peer_count",
			Help:      "Peers currently held in the Peer Directory.",
		}),
	}
	m.registry.MustRegister(m.framesSent, m.framesReceived, m.framesDropped,
		m.activeTransfers, m.activeGames, m.peerCount)
	return m
}

func (m *Metrics) FrameSent(typ string)     { m.framesSent.WithLabelValues(typ).Inc() }
func (m *Metrics) FrameReceived(typ string) { m.framesReceived.WithLabelValues(typ).Inc() }
func (m *Metrics) FrameDropped(reason string) {
	m.framesDropped.WithLabelValues(reason).Inc()
}
func (m *Metrics) SetActiveTransfers(n int) { m.activeTransfers.Set(float64(n)) }
func (m *Metrics) SetActiveGames(n int)     { m.activeGames.Set(float64(n)) }
func (m *Metrics) SetPeerCount(n int)       { m.peerCount.Set(float64(n)) }
