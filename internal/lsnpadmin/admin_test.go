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

package lsnpadmin_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/lsnp/internal/lsnpadmin"
	"github.com/nabbar/lsnp/internal/lsnplog"
	"github.com/nabbar/lsnp/pkg/directory"
	"github.com/nabbar/lsnp/pkg/group"
)

func TestLsnpAdmin(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "lsnpadmin Suite")
}

// fakeState is a minimal StateProvider, standing in for a Dispatcher.
type fakeState struct {
	peers      []directory.Record
	groups     []*group.Group
	transfers  int
	games      int
}

func (f *fakeState) Peers() []directory.Record  { return f.peers }
func (f *fakeState) Groups() []*group.Group     { return f.groups }
func (f *fakeState) ActiveTransfers() int       { return f.transfers }
func (f *fakeState) ActiveGames() int           { return f.games }

var _ = Describe("Server", func() {
	var (
		metrics *lsnpadmin.Metrics
		state   *fakeState
		srv     *lsnpadmin.Server
		ctx     context.Context
		cancel  context.CancelFunc
		done    chan error
	)

	BeforeEach(func() {
		metrics = lsnpadmin.NewMetrics()
		state = &fakeState{
			peers:  []directory.Record{{UserID: "alice", Addr: "127.0.0.1:9", DisplayName: "Alice"}},
			groups: []*group.Group{{ID: "g1", Title: "Study", Owner: "alice", Members: map[string]bool{"alice": true, "bob": true}}},
			transfers: 1,
			games:     2,
		}

		var err error
		srv, err = lsnpadmin.NewServer("127.0.0.1:0", metrics, state, lsnplog.New(io.Discard))
		Expect(err).ToNot(HaveOccurred())

		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- srv.Run(ctx) }()

		Eventually(func() error {
			_, err := http.Get("http://" + srv.Addr() + "/metrics")
			return err
		}, time.Second, 5*time.Millisecond).Should(Succeed())
	})

	AfterEach(func() {
		cancel()
		Eventually(done, time.Second).Should(Receive(BeNil()))
	})

	It("rejects a non-loopback bind address", func() {
		_, err := lsnpadmin.NewServer("0.0.0.0:0", metrics, state, lsnplog.New(io.Discard))
		Expect(err).To(HaveOccurred())
	})

	It("serves /debug/state as a JSON snapshot of peers, groups, transfers and games", func() {
		resp, err := http.Get("http://" + srv.Addr() + "/debug/state")
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body, err := io.ReadAll(resp.Body)
		Expect(err).ToNot(HaveOccurred())

		var parsed struct {
			Peers           []lsnpadmin.PeerView  `json:"peers"`
			Groups          []lsnpadmin.GroupView `json:"groups"`
			ActiveTransfers int                   `json:"active_transfers"`
			ActiveGames     int                   `json:"active_games"`
		}
		Expect(json.Unmarshal(body, &parsed)).To(Succeed())
		Expect(parsed.Peers).To(HaveLen(1))
		Expect(parsed.Peers[0].UserID).To(Equal("alice"))
		Expect(parsed.Groups).To(HaveLen(1))
		Expect(parsed.Groups[0].ID).To(Equal("g1"))
		Expect(parsed.ActiveTransfers).To(Equal(1))
		Expect(parsed.ActiveGames).To(Equal(2))
	})

	It("serves /metrics in Prometheus exposition format and reflects recorded events", func() {
		metrics.FrameSent("POST")
		metrics.FrameReceived("POST")
		metrics.FrameDropped("malformed")
		metrics.SetActiveTransfers(3)
		metrics.SetActiveGames(1)
		metrics.SetPeerCount(5)

		resp, err := http.Get("http://" + srv.Addr() + "/metrics")
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body, err := io.ReadAll(resp.Body)
		Expect(err).ToNot(HaveOccurred())
		text := string(body)

		Expect(text).To(ContainSubstring(`lsnp_frames_sent_total{type="POST"} 1`))
		Expect(text).To(ContainSubstring(`lsnp_frames_received_total{type="POST"} 1`))
		Expect(text).To(ContainSubstring(`lsnp_frames_dropped_total{reason="malformed"} 1`))
		Expect(text).To(ContainSubstring("lsnp_active_transfers 3"))
		Expect(text).To(ContainSubstring("lsnp_active_games 1"))
		Expect(text).To(ContainSubstring("lsnp_peer_count 5"))
	})
})
