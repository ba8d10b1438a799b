package presence_test

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/lsnp/internal/lsnplog"
	"github.com/nabbar/lsnp/pkg/presence"
)

func TestPresence(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "presence Suite")
}

var _ = Describe("Engine", func() {
	It("broadcasts ping and profile on the presence interval and prunes on the prune interval", func() {
		var pings, profiles, prunes int64

		deps := presence.Dependencies{
			BroadcastPing: func(ctx context.Context) error {
				atomic.AddInt64(&pings, 1)
				return nil
			},
			BroadcastProfile: func(ctx context.Context, p presence.Profile) error {
				atomic.AddInt64(&profiles, 1)
				return nil
			},
			CurrentProfile: func() presence.Profile {
				return presence.Profile{DisplayName: "Alice", Status: "hi"}
			},
			Prune: func() []string {
				atomic.AddInt64(&prunes, 1)
				return nil
			},
		}

		eng := presence.New(deps, 15*time.Millisecond, 10*time.Millisecond, lsnplog.New(io.Discard))
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			eng.Run(ctx)
			close(done)
		}()

		Eventually(func() int64 { return atomic.LoadInt64(&pings) }, time.Second).Should(BeNumerically(">=", 2))
		Eventually(func() int64 { return atomic.LoadInt64(&prunes) }, time.Second).Should(BeNumerically(">=", 2))

		cancel()
		Eventually(done, time.Second).Should(BeClosed())
	})
})
