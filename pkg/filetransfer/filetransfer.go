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

// Package filetransfer implements the three-phase reliable file transfer
// over UDP: offer, accept, chunked transmission with a sliding window,
// per-chunk retransmission, and idempotent reassembly (spec.md §3, §4.7).
package filetransfer

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/hashicorp/go-uuid"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/semaphore"

	"github.com/nabbar/lsnp/internal/lsnperr"
)

// State is a FileTransfer's lifecycle state (spec.md §3).
type State int

const (
	StateOffered State = iota
	StateAccepted
	StateTransferring
	StateComplete
	StateCancelled
)

// Config bundles the tunables spec.md §4.7 and lsnpconfig carry for file
// transfer: chunk size, sliding window, retry budget, and timeouts.
type Config struct {
	ChunkSize    int
	Window       int
	MaxRetries   int
	ChunkTimeout time.Duration
	IdleTimeout  time.Duration
}

// Sender is the set of send primitives a Transfer needs to emit
// frames — kept as an interface so filetransfer has no direct dependency
// on pkg/transport or pkg/codec (the Dispatcher wires concrete
// implementations in).
type Sender interface {
	SendChunk(fileID string, seq int, data []byte, compressed bool) error
	SendComplete(fileID string) error
}

// NewFileID mints a random 64-bit hex file_id (spec.md §4.7 "sender picks
// a unique file_id (random 64-bit hex)").
func NewFileID() (string, error) {
	b, err := uuid.GenerateRandomBytes(8)
	if err != nil {
		return "", lsnperr.Wrap(lsnperr.LocalIOError, "generate file_id", err)
	}
	const hex = "0123456789abcdef"
	out := make([]byte, 16)
	for i, v := range b {
		out[i*2] = hex[v>>4]
		out[i*2+1] = hex[v&0x0f]
	}
	return string(out), nil
}

// Transfer is one FileTransfer session (spec.md §3).
type Transfer struct {
	FileID      string
	Sender      string
	Receiver    string
	Filename    string
	Size        int64
	ChunkSize   int
	TotalChunks int

	mu       sync.Mutex
	state    State
	received *bitset.BitSet // receiver side: which chunks have arrived
	buffer   [][]byte       // receiver side: chunk bodies indexed by seq

	// sender side
	acked   *bitset.BitSet
	window  *semaphore.Weighted
	retries map[int]int
	sentAt  map[int]time.Time // last transmission time per unacked seq

	// out and chunkSource let RetransmitOverdue resend a chunk without the
	// caller threading the Sender/source closure through on every tick —
	// captured once, on the first SendChunks call.
	out         Sender
	chunkSource func(seq int) []byte

	lastSeen time.Time
}

// OfferOutbound starts a sender-side Transfer before any FILE_ACCEPT has
// arrived (spec.md §4.7 step 1).
func OfferOutbound(fileID, sender, receiver, filename string, size int64, cfg Config) *Transfer {
	total := int(size) / cfg.ChunkSize
	if int(size)%cfg.ChunkSize != 0 {
		total++
	}
	return &Transfer{
		FileID:      fileID,
		Sender:      sender,
		Receiver:    receiver,
		Filename:    filename,
		Size:        size,
		ChunkSize:   cfg.ChunkSize,
		TotalChunks: total,
		state:       StateOffered,
		acked:       bitset.New(uint(total)),
		window:      semaphore.NewWeighted(int64(cfg.Window)),
		retries:     make(map[int]int),
		sentAt:      make(map[int]time.Time),
		lastSeen:    time.Now(),
	}
}

// OfferInbound starts a receiver-side Transfer from a FILE_OFFER frame
// (spec.md §4.7 step 1 "Receiver surfaces the offer").
func OfferInbound(fileID, sender, receiver, filename string, size int64, chunkSize, totalChunks int) *Transfer {
	return &Transfer{
		FileID:      fileID,
		Sender:      sender,
		Receiver:    receiver,
		Filename:    filename,
		Size:        size,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		state:       StateOffered,
		received:    bitset.New(uint(totalChunks)),
		buffer:      make([][]byte, totalChunks),
		lastSeen:    time.Now(),
	}
}

// State returns the current lifecycle state.
func (t *Transfer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Accept transitions a sender-side Transfer to ACCEPTED on FILE_ACCEPT
// (spec.md §4.7 step 2).
func (t *Transfer) Accept() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateOffered {
		t.state = StateAccepted
	}
	t.lastSeen = time.Now()
}

// CompressChunk compresses raw with lz4 if doing so shrinks it, per the
// opportunistic chunk-compression behavior: frames are capped at 8 KiB and
// base64 already inflates payload by ~33%, so a chunk that compresses
// well buys back headroom. Returns the (possibly unchanged) bytes and
// whether compression was applied.
func CompressChunk(raw []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return raw, false
	}
	if err := w.Close(); err != nil {
		return raw, false
	}
	if buf.Len() >= len(raw) {
		return raw, false
	}
	return buf.Bytes(), true
}

// DecompressChunk reverses CompressChunk.
func DecompressChunk(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, lsnperr.Wrap(lsnperr.LocalIOError, "lz4 decompress", err)
	}
	return out.Bytes(), nil
}

// SendChunks transmits every unacked chunk within the sliding window,
// acquiring window as the semaphore permits (spec.md §4.7 step 3 "sender
// maintains a sliding window of unacked chunks"). chunkAt returns the raw
// bytes for seq (the caller reads the source file/buffer).
func (t *Transfer) SendChunks(ctx context.Context, sender Sender, chunkAt func(seq int) []byte) error {
	t.mu.Lock()
	t.state = StateTransferring
	t.out = sender
	t.chunkSource = chunkAt
	total := t.TotalChunks
	t.mu.Unlock()

	for seq := 0; seq < total; seq++ {
		t.mu.Lock()
		acked := t.acked.Test(uint(seq))
		t.mu.Unlock()
		if acked {
			continue
		}
		if err := t.window.Acquire(ctx, 1); err != nil {
			return lsnperr.Wrap(lsnperr.TransferTimeout, "acquire send window", err)
		}
		raw := chunkAt(seq)
		data, compressed := CompressChunk(raw)
		if err := sender.SendChunk(t.FileID, seq, data, compressed); err != nil {
			t.window.Release(1)
			return err
		}
		t.mu.Lock()
		t.sentAt[seq] = time.Now()
		t.mu.Unlock()
	}
	return nil
}

// RetransmitOverdue resends every unacked chunk whose last transmission is
// older than timeout, up to maxRetries attempts each (spec.md §4.7 step 3
// "on 1-second per-chunk timeout it retransmits (up to 5 retries)"). A
// no-op on the receiver side (acked is nil there) or before the first
// SendChunks call (out is nil). Returns true if any chunk just exhausted
// its retry budget — the caller should Cancel the transfer.
func (t *Transfer) RetransmitOverdue(now time.Time, timeout time.Duration, maxRetries int) bool {
	t.mu.Lock()
	if t.acked == nil || t.out == nil {
		t.mu.Unlock()
		return false
	}
	var due []int
	for seq := 0; seq < t.TotalChunks; seq++ {
		if t.acked.Test(uint(seq)) {
			continue
		}
		if last, ok := t.sentAt[seq]; ok && now.Sub(last) >= timeout {
			due = append(due, seq)
		}
	}
	sender := t.out
	chunkAt := t.chunkSource
	fileID := t.FileID
	t.mu.Unlock()

	exhausted := false
	for _, seq := range due {
		if t.RecordRetry(seq, maxRetries) {
			exhausted = true
			continue
		}
		raw := chunkAt(seq)
		data, compressed := CompressChunk(raw)
		if err := sender.SendChunk(fileID, seq, data, compressed); err != nil {
			continue
		}
		t.mu.Lock()
		t.sentAt[seq] = now
		t.mu.Unlock()
	}
	return exhausted
}

// AckChunk marks seq as acknowledged and releases its window slot
// (spec.md §4.7 step 3 "on ACK it advances and refills").
func (t *Transfer) AckChunk(seq int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.acked == nil || t.acked.Test(uint(seq)) {
		return
	}
	t.acked.Set(uint(seq))
	t.lastSeen = time.Now()
	t.window.Release(1)
}

// AllAcked reports whether every chunk has been acknowledged.
func (t *Transfer) AllAcked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acked != nil && int(t.acked.Count()) == t.TotalChunks
}

// AckedCount reports how many chunks have been acknowledged so far, for
// progress reporting (e.g. a CLI progress bar).
func (t *Transfer) AckedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.acked == nil {
		return 0
	}
	return int(t.acked.Count())
}

// RetryCount returns how many times seq has been retransmitted so far.
func (t *Transfer) RetryCount(seq int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retries[seq]
}

// RecordRetry increments seq's retry counter and reports whether the
// retry budget (spec.md §4.7 "up to 5 retries") is exhausted.
func (t *Transfer) RecordRetry(seq, maxRetries int) (exhausted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retries[seq]++
	return t.retries[seq] > maxRetries
}

// ReceiveChunk stores a receiver-side chunk at seq, decompressing first if
// compressed. Duplicate sequence numbers are idempotent: the body of an
// already-received chunk is ignored and the caller still ACKs it (spec.md §4.7,
// §8 "Duplicate inbound FILE_CHUNK: ACKed, payload applied exactly once").
func (t *Transfer) ReceiveChunk(seq int, data []byte, compressed bool) error {
	if seq < 0 || seq >= t.TotalChunks {
		return lsnperr.New(lsnperr.MalformedFrame, "chunk seq out of range")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastSeen = time.Now()
	if t.state == StateOffered || t.state == StateAccepted {
		t.state = StateTransferring
	}
	if t.received.Test(uint(seq)) {
		return nil // already applied; caller still ACKs
	}

	body := data
	if compressed {
		dec, err := DecompressChunk(data)
		if err != nil {
			return err
		}
		body = dec
	}
	t.buffer[seq] = body
	t.received.Set(uint(seq))
	return nil
}

// Complete reports whether every chunk has arrived.
func (t *Transfer) Complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.received != nil && int(t.received.Count()) == t.TotalChunks
}

// Assemble concatenates the received chunks in order. Only meaningful once
// Complete reports true.
func (t *Transfer) Assemble() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var buf bytes.Buffer
	for _, c := range t.buffer {
		buf.Write(c)
	}
	return buf.Bytes()
}

// MarkComplete transitions to COMPLETE.
func (t *Transfer) MarkComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateComplete
}

// IdleFor reports how long the transfer has gone without progress —
// compared against the 60s inactivity timeout (spec.md §4.7, §5).
func (t *Transfer) IdleFor(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.lastSeen)
}

// Cancel transitions to CANCELLED, e.g. on inactivity timeout
// (spec.md §4.7, §5 "Pending retransmissions are cancelled immediately on
// state transition out of ACTIVE/TRANSFERRING").
func (t *Transfer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateCancelled
}
