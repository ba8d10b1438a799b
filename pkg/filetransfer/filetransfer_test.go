package filetransfer_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/lsnp/internal/lsnperr"
	"github.com/nabbar/lsnp/pkg/filetransfer"
)

func TestFiletransfer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "filetransfer Suite")
}

type fakeSender struct {
	sent []int
}

func (f *fakeSender) SendChunk(fileID string, seq int, data []byte, compressed bool) error {
	f.sent = append(f.sent, seq)
	return nil
}

func (f *fakeSender) SendComplete(fileID string) error { return nil }

var _ = Describe("NewFileID", func() {
	It("mints a 16-char hex id", func() {
		id, err := filetransfer.NewFileID()
		Expect(err).ToNot(HaveOccurred())
		Expect(id).To(HaveLen(16))
		Expect(id).To(MatchRegexp("^[0-9a-f]{16}$"))
	})

	It("mints distinct ids across calls", func() {
		a, _ := filetransfer.NewFileID()
		b, _ := filetransfer.NewFileID()
		Expect(a).ToNot(Equal(b))
	})
})

var _ = Describe("Sender-side transfer", func() {
	cfg := filetransfer.Config{ChunkSize: 8, Window: 2, MaxRetries: 5, ChunkTimeout: time.Second, IdleTimeout: time.Minute}

	It("sends chunks within the window and completes once all are acked", func() {
		body := []byte("Hello LSNP file transfer!") // 25 bytes, chunkSize 8 -> 4 chunks
		tr := filetransfer.OfferOutbound("abc123", "Alice@127.0.0.1", "Bob@127.0.0.2", "testfile.txt", int64(len(body)), cfg)
		tr.Accept()

		sender := &fakeSender{}
		done := make(chan error, 1)
		go func() {
			done <- tr.SendChunks(context.Background(), sender, func(seq int) []byte {
				start := seq * cfg.ChunkSize
				end := start + cfg.ChunkSize
				if end > len(body) {
					end = len(body)
				}
				return body[start:end]
			})
		}()

		Eventually(func() int { return len(sender.sent) }, time.Second).Should(Equal(cfg.Window))

		for seq := 0; seq < tr.TotalChunks; seq++ {
			tr.AckChunk(seq)
		}

		Eventually(done, time.Second).Should(Receive(BeNil()))
		Expect(tr.AllAcked()).To(BeTrue())
	})

	It("tracks retry exhaustion against MaxRetries", func() {
		tr := filetransfer.OfferOutbound("abc123", "Alice@127.0.0.1", "Bob@127.0.0.2", "f.txt", 8, cfg)
		for i := 0; i < cfg.MaxRetries; i++ {
			Expect(tr.RecordRetry(0, cfg.MaxRetries)).To(BeFalse())
		}
		Expect(tr.RecordRetry(0, cfg.MaxRetries)).To(BeTrue())
	})
})

var _ = Describe("Receiver-side transfer", func() {
	It("reassembles chunks received out of order", func() {
		tr := filetransfer.OfferInbound("abc123", "Alice@127.0.0.1", "Bob@127.0.0.2", "testfile.txt", 26, 8, 4)

		Expect(tr.ReceiveChunk(1, []byte(" LSNP fi"), false)).ToNot(HaveOccurred())
		Expect(tr.ReceiveChunk(0, []byte("Hello"), false)).ToNot(HaveOccurred())
		Expect(tr.Complete()).To(BeFalse())

		Expect(tr.ReceiveChunk(2, []byte("le transf"), false)).ToNot(HaveOccurred())
		Expect(tr.ReceiveChunk(3, []byte("er!"), false)).ToNot(HaveOccurred())
		Expect(tr.Complete()).To(BeTrue())

		Expect(string(tr.Assemble())).To(Equal("Hello LSNP file transfer!"))
	})

	It("applies a duplicate chunk exactly once", func() {
		tr := filetransfer.OfferInbound("abc123", "Alice@127.0.0.1", "Bob@127.0.0.2", "f.txt", 5, 5, 1)
		Expect(tr.ReceiveChunk(0, []byte("Hello"), false)).ToNot(HaveOccurred())
		Expect(tr.ReceiveChunk(0, []byte("Hello"), false)).ToNot(HaveOccurred())
		Expect(tr.Complete()).To(BeTrue())
		Expect(string(tr.Assemble())).To(Equal("Hello"))
	})

	It("rejects an out-of-range sequence number", func() {
		tr := filetransfer.OfferInbound("abc123", "Alice@127.0.0.1", "Bob@127.0.0.2", "f.txt", 5, 5, 1)
		err := tr.ReceiveChunk(5, []byte("x"), false)
		Expect(lsnperr.Is(err, lsnperr.MalformedFrame)).To(BeTrue())
	})

	It("decompresses an lz4-compressed chunk transparently", func() {
		raw := bytes.Repeat([]byte("a"), 64)
		compressed, ok := filetransfer.CompressChunk(raw)
		Expect(ok).To(BeTrue())

		tr := filetransfer.OfferInbound("abc123", "Alice@127.0.0.1", "Bob@127.0.0.2", "f.txt", int64(len(raw)), len(raw), 1)
		Expect(tr.ReceiveChunk(0, compressed, true)).ToNot(HaveOccurred())
		Expect(tr.Assemble()).To(Equal(raw))
	})
})

var _ = Describe("Idle and cancellation", func() {
	It("reports idle duration and transitions to cancelled", func() {
		tr := filetransfer.OfferInbound("abc123", "Alice@127.0.0.1", "Bob@127.0.0.2", "f.txt", 5, 5, 1)
		later := time.Now().Add(2 * time.Minute)
		Expect(tr.IdleFor(later)).To(BeNumerically(">=", 2*time.Minute-time.Second))

		tr.Cancel()
		Expect(tr.State()).To(Equal(filetransfer.StateCancelled))
	})
})
