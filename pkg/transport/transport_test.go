package transport_test

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/lsnp/internal/lsnplog"
	"github.com/nabbar/lsnp/pkg/transport"
)

func TestTransport(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "transport Suite")
}

var _ = Describe("Transport", func() {
	var log lsnplog.Logger

	BeforeEach(func() {
		log = lsnplog.New(io.Discard)
	})

	It("round-trips a unicast datagram between two transports", func() {
		a, err := transport.New(transport.Config{ListenAddr: "127.0.0.1:0", Mode: "simulate"}, log)
		Expect(err).ToNot(HaveOccurred())
		defer a.Close()

		b, err := transport.New(transport.Config{ListenAddr: "127.0.0.1:0", Mode: "simulate"}, log)
		Expect(err).ToNot(HaveOccurred())
		defer b.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		received := make(chan []byte, 1)
		go func() {
			_ = b.Listen(ctx, func(raw []byte, from *net.UDPAddr) {
				received <- raw
			})
		}()

		// give the read loop a moment to start
		time.Sleep(20 * time.Millisecond)

		err = a.SendUnicast(ctx, []byte("hello"), b.LocalAddr())
		Expect(err).ToNot(HaveOccurred())

		select {
		case msg := <-received:
			Expect(string(msg)).To(Equal("hello"))
		case <-time.After(2 * time.Second):
			Fail("timed out waiting for datagram")
		}
	})

	It("fans SendBroadcast out to every registered peer in simulate mode", func() {
		hub, err := transport.New(transport.Config{ListenAddr: "127.0.0.1:0", Mode: "simulate"}, log)
		Expect(err).ToNot(HaveOccurred())
		defer hub.Close()

		var mu sync.Mutex
		counts := map[string]int{}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		peers := make([]*transport.Transport, 3)
		for i := range peers {
			p, err := transport.New(transport.Config{ListenAddr: "127.0.0.1:0", Mode: "simulate"}, log)
			Expect(err).ToNot(HaveOccurred())
			defer p.Close()
			peers[i] = p
			hub.AddPeer(p.LocalAddr().String())

			go func(addr string) {
				_ = p.Listen(ctx, func(raw []byte, from *net.UDPAddr) {
					mu.Lock()
					counts[addr]++
					mu.Unlock()
				})
			}(p.LocalAddr().String())
		}

		time.Sleep(20 * time.Millisecond)
		Expect(hub.SendBroadcast(ctx, []byte("ping"))).ToNot(HaveOccurred())

		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			total := 0
			for _, c := range counts {
				total += c
			}
			return total
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(3))
	})

	It("stops Listen cleanly when the context is cancelled", func() {
		tr, err := transport.New(transport.Config{ListenAddr: "127.0.0.1:0", Mode: "simulate"}, log)
		Expect(err).ToNot(HaveOccurred())
		defer tr.Close()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- tr.Listen(ctx, func(raw []byte, from *net.UDPAddr) {})
		}()

		time.Sleep(20 * time.Millisecond)
		Expect(tr.IsRunning()).To(BeTrue())
		cancel()

		Eventually(done, 2*time.Second).Should(Receive(BeNil()))
	})
})

var _ = Describe("TickEvery", func() {
	It("invokes fn on each tick until ctx is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		var count int
		var mu sync.Mutex

		done := make(chan struct{})
		go func() {
			transport.TickEvery(ctx, 10*time.Millisecond, func() {
				mu.Lock()
				count++
				mu.Unlock()
			})
			close(done)
		}()

		time.Sleep(55 * time.Millisecond)
		cancel()
		<-done

		mu.Lock()
		defer mu.Unlock()
		Expect(count).To(BeNumerically(">=", 2))
	})
})
