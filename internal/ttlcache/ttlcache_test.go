package ttlcache_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/lsnp/internal/ttlcache"
)

func TestTTLCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ttlcache Suite")
}

var _ = Describe("Map", func() {
	It("stores and loads", func() {
		m := ttlcache.New[string, int](time.Minute)
		m.Store("a", 1)
		v, ok := m.Load("a")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(1))
	})

	It("expires entries older than their TTL", func() {
		m := ttlcache.New[string, int](time.Millisecond)
		m.Store("a", 1)
		time.Sleep(5 * time.Millisecond)
		_, ok := m.Load("a")
		Expect(ok).To(BeFalse())
	})

	It("never expires zero-TTL entries", func() {
		m := ttlcache.New[string, int](0)
		m.Store("a", 1)
		time.Sleep(2 * time.Millisecond)
		v, ok := m.Load("a")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(1))
	})

	It("prunes expired entries explicitly", func() {
		m := ttlcache.New[string, int](time.Millisecond)
		m.Store("a", 1)
		m.StoreWithTTL("b", 2, time.Hour)
		time.Sleep(5 * time.Millisecond)
		removed := m.Prune(time.Now())
		Expect(removed).To(Equal(1))
		Expect(m.Len()).To(Equal(1))
	})

	It("LoadOrStore only stores when absent", func() {
		m := ttlcache.New[string, int](time.Minute)
		v, loaded := m.LoadOrStore("a", 1)
		Expect(loaded).To(BeFalse())
		Expect(v).To(Equal(1))

		v, loaded = m.LoadOrStore("a", 2)
		Expect(loaded).To(BeTrue())
		Expect(v).To(Equal(1))
	})
})
