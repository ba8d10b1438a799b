package directory_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/lsnp/pkg/directory"
)

func TestDirectory(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "directory Suite")
}

var _ = Describe("Directory", func() {
	var (
		now       time.Time
		discover  []directory.Record
		dir       *directory.Directory
	)

	BeforeEach(func() {
		now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		discover = nil
		dir = directory.New(30*time.Second, func(r directory.Record) {
			discover = append(discover, r)
		})
		dir.SetClock(func() time.Time { return now })
	})

	It("emits a discovery notification exactly once per new peer", func() {
		dir.Observe("Bob@127.0.0.2", "127.0.0.2:50999", nil)
		dir.Observe("Bob@127.0.0.2", "127.0.0.2:50999", nil)
		Expect(discover).To(HaveLen(1))
		Expect(discover[0].UserID).To(Equal("Bob@127.0.0.2"))
	})

	It("refreshes LastSeen and fields on repeated observation", func() {
		dir.Observe("Bob@127.0.0.2", "127.0.0.2:50999", nil)
		now = now.Add(10 * time.Second)
		dir.Observe("Bob@127.0.0.2", "127.0.0.2:50999", &directory.Record{
			DisplayName: "Bob",
			Status:      "hi",
		})

		rec, ok := dir.Lookup("Bob@127.0.0.2")
		Expect(ok).To(BeTrue())
		Expect(rec.DisplayName).To(Equal("Bob"))
		Expect(rec.Status).To(Equal("hi"))
		Expect(rec.LastSeen).To(Equal(now))
	})

	It("lists every known peer", func() {
		dir.Observe("Bob@127.0.0.2", "127.0.0.2:50999", nil)
		dir.Observe("Carol@127.0.0.3", "127.0.0.3:50999", nil)
		Expect(dir.List()).To(HaveLen(2))
	})

	It("prunes peers unseen for 3x the presence interval", func() {
		dir.Observe("Bob@127.0.0.2", "127.0.0.2:50999", nil)
		now = now.Add(91 * time.Second)
		removed := dir.Prune()
		Expect(removed).To(ConsistOf("Bob@127.0.0.2"))
		_, ok := dir.Lookup("Bob@127.0.0.2")
		Expect(ok).To(BeFalse())
	})

	It("does not prune a peer seen within the window", func() {
		dir.Observe("Bob@127.0.0.2", "127.0.0.2:50999", nil)
		now = now.Add(60 * time.Second)
		Expect(dir.Prune()).To(BeEmpty())
		_, ok := dir.Lookup("Bob@127.0.0.2")
		Expect(ok).To(BeTrue())
	})
})
