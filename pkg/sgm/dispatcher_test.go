/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/audiograph/sgm/pkg/sgm"
	"github.com/audiograph/sgm/pkg/wire"
)

// fixedPayloadBuilder is the simplest PayloadBuilder: a fixed-size body
// of a repeated byte value.
type fixedPayloadBuilder struct {
	size     uint32
	fill     byte
	sizeErr  error
	fillErr  error
}

func (b *fixedPayloadBuilder) Size() (uint32, error) {
	return b.size, b.sizeErr
}

func (b *fixedPayloadBuilder) Fill(dest []byte) error {
	if b.fillErr != nil {
		return b.fillErr
	}
	for i := range dest {
		dest[i] = b.fill
	}
	return nil
}

var _ sgm.PayloadBuilder = &fixedPayloadBuilder{}

var _ = Describe("Dispatcher", func() {
	var (
		router *fakeRouter
		cache  *stubCacheOps
		shm    *sgm.ShmManager
		cmds   *sgm.CommandHandleRegistry
		disp   *sgm.Dispatcher
	)

	BeforeEach(func() {
		router = &fakeRouter{}
		cache = &stubCacheOps{}
		shm = sgm.NewShmManager(&stubHandleTranslator{})
		cmds = sgm.NewCommandHandleRegistry(newTestLogger(), shm)
		disp = sgm.NewDispatcher(newTestLogger(), cmds, shm, cache, router)
	})

	It("sends small payloads in-band, with no SHM region allocated", func() {
		builder := &fixedPayloadBuilder{size: 32, fill: 0xAA}
		target := sgm.DispatchTarget{SrcDomain: 1, DstDomain: 2, SrcPort: 3, DstPort: 4}

		h, err := disp.Dispatch(sgm.OpcodeGraphOpen, builder, target)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.IsInband).To(BeTrue())
		Expect(h.Region).To(BeNil())
		Expect(h.WaitForRsp).To(BeTrue())

		sent := router.lastSent()
		Expect(sent).NotTo(BeNil())
		Expect(sent.Payload).To(HaveLen(int(wire.CommandHeaderSize + 32)))
		Expect(cache.flushed).To(Equal(0), "in-band dispatch never touches the cache")
	})

	It("sends large payloads out of band, through an allocated SHM region", func() {
		builder := &fixedPayloadBuilder{size: disp.InBandThreshold + 1, fill: 0x5A}
		target := sgm.DispatchTarget{SrcDomain: 1, DstDomain: 2, SrcPort: 3, DstPort: 4, SatelliteDomainID: 9}

		h, err := disp.Dispatch(sgm.OpcodeGraphPrepare, builder, target)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.IsInband).To(BeFalse())
		Expect(h.Region).NotTo(BeNil())

		sent := router.lastSent()
		Expect(sent).NotTo(BeNil())
		Expect(sent.Payload).To(HaveLen(int(wire.CommandHeaderSize)))
		Expect(cache.flushed).To(Equal(1), "OOB dispatch flushes the region after filling it")
		Expect(h.Region.Bytes()[0]).To(Equal(byte(0x5A)))
	})

	It("bails out and frees the packet when Fill fails", func() {
		builder := &fixedPayloadBuilder{size: 16, fillErr: errors.New("boom")}
		target := sgm.DispatchTarget{SrcDomain: 1, DstDomain: 2}

		_, err := disp.Dispatch(sgm.OpcodeGraphOpen, builder, target)
		Expect(err).To(HaveOccurred())
		Expect(sgm.KindOf(err)).To(Equal(sgm.BadParam))
		Expect(cmds.Active()).To(BeNil())
		Expect(router.sentCount()).To(Equal(0))
	})

	It("fails Busy when a command is already active", func() {
		builder := &fixedPayloadBuilder{size: 16, fill: 1}
		target := sgm.DispatchTarget{SrcDomain: 1, DstDomain: 2}

		_, err := disp.Dispatch(sgm.OpcodeGraphOpen, builder, target)
		Expect(err).NotTo(HaveOccurred())

		_, err = disp.Dispatch(sgm.OpcodeGraphPrepare, builder, target)
		Expect(err).To(HaveOccurred())
		Expect(sgm.KindOf(err)).To(Equal(sgm.Busy))
	})
})
