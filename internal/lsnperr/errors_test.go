package lsnperr_test

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/lsnp/internal/lsnperr"
)

func TestLsnperr(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "lsnperr Suite")
}

var _ = Describe("Error", func() {
	It("renders code and message", func() {
		e := lsnperr.New(lsnperr.ScopeMismatch, "expected chat, got game")
		Expect(e.Error()).To(Equal("ScopeMismatch: expected chat, got game"))
		Expect(e.Code()).To(Equal(lsnperr.ScopeMismatch))
	})

	It("chains a parent error", func() {
		root := errors.New("socket closed")
		e := lsnperr.Wrap(lsnperr.LocalIOError, "write failed", root)
		Expect(errors.Unwrap(e)).To(Equal(root))
	})

	It("matches by code across a wrapped chain", func() {
		root := lsnperr.New(lsnperr.Expired, "token expired")
		e := lsnperr.Wrap(lsnperr.InvalidToken, "rejecting DM", root)
		Expect(lsnperr.Is(e, lsnperr.InvalidToken)).To(BeTrue())
		Expect(lsnperr.Is(e, lsnperr.Expired)).To(BeTrue())
		Expect(lsnperr.Is(e, lsnperr.GameTimeout)).To(BeFalse())
	})

	It("reports Unknown for plain errors", func() {
		Expect(lsnperr.CodeOf(errors.New("plain"))).To(Equal(lsnperr.Unknown))
	})
})
