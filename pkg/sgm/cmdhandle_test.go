/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/audiograph/sgm/pkg/sgm"
)

var _ = Describe("CommandHandleRegistry", func() {
	var (
		shm *sgm.ShmManager
		reg *sgm.CommandHandleRegistry
	)

	BeforeEach(func() {
		shm = sgm.NewShmManager(&stubHandleTranslator{})
		reg = sgm.NewCommandHandleRegistry(newTestLogger(), shm)
	})

	It("issues dynamic tokens starting at DynamicTokenStart", func() {
		h, err := reg.Preprocess(sgm.OpcodeGraphOpen, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Token).To(BeNumerically(">=", sgm.DynamicTokenStart))
	})

	It("rejects a second command while one is active, except GRAPH_CLOSE", func() {
		_, err := reg.Preprocess(sgm.OpcodeGraphOpen, true)
		Expect(err).NotTo(HaveOccurred())

		_, err = reg.Preprocess(sgm.OpcodeGraphPrepare, true)
		Expect(err).To(HaveOccurred())
		Expect(sgm.KindOf(err)).To(Equal(sgm.Busy))

		_, err = reg.Preprocess(sgm.OpcodeGraphClose, true)
		Expect(err).NotTo(HaveOccurred())
	})

	It("moves the active handle into the waiting list on Postprocess", func() {
		h, err := reg.Preprocess(sgm.OpcodeGraphOpen, true)
		Expect(err).NotTo(HaveOccurred())

		Expect(reg.Len()).To(Equal(0))
		reg.Postprocess()
		Expect(reg.Len()).To(Equal(1))
		Expect(h.WaitForRsp).To(BeTrue())

		found, ok := reg.LookupByToken(h.Token)
		Expect(ok).To(BeTrue())
		Expect(found).To(BeIdenticalTo(h))
	})

	It("clears the active pointer and releases SHM on BailOut", func() {
		region, err := shm.Alloc(64, 7)
		Expect(err).NotTo(HaveOccurred())

		h, err := reg.Preprocess(sgm.OpcodeGraphPrepare, false)
		Expect(err).NotTo(HaveOccurred())
		h.Region = region

		reg.BailOut()
		Expect(reg.Active()).To(BeNil())
		_, _, err = shm.VAToRemote(region.LocalVA)
		Expect(err).To(HaveOccurred())

		// BailOut on an already-nil active handle is a no-op, not a panic.
		Expect(func() { reg.BailOut() }).NotTo(Panic())
	})

	It("destroys a handle by token and leaves the active pointer untouched when they differ", func() {
		first, err := reg.Preprocess(sgm.OpcodeGraphOpen, true)
		Expect(err).NotTo(HaveOccurred())
		reg.Postprocess()

		second, err := reg.Preprocess(sgm.OpcodeGraphClose, true)
		Expect(err).NotTo(HaveOccurred())

		reg.Destroy(first.Token)
		Expect(reg.Len()).To(Equal(0))
		Expect(reg.Active()).To(BeIdenticalTo(second))

		_, ok := reg.LookupByToken(first.Token)
		Expect(ok).To(BeFalse())
	})

	It("destroying an unknown token is a no-op", func() {
		Expect(func() { reg.Destroy(0xDEADBEEF) }).NotTo(Panic())
		Expect(reg.Len()).To(Equal(0))
	})

	It("PopFront removes handles in FIFO order without walking a live list", func() {
		h1, _ := reg.Preprocess(sgm.OpcodeGraphOpen, true)
		reg.Postprocess()
		reg.Destroy(h1.Token) // clears active so the next Preprocess is allowed

		h2, _ := reg.Preprocess(sgm.OpcodeGraphPrepare, true)
		reg.Postprocess()
		h3, _ := reg.Preprocess(sgm.OpcodeGraphClose, true)
		reg.Postprocess()

		popped, ok := reg.PopFront()
		Expect(ok).To(BeTrue())
		Expect(popped).To(BeIdenticalTo(h2))
		reg.ReleaseHandle(popped)

		popped, ok = reg.PopFront()
		Expect(ok).To(BeTrue())
		Expect(popped).To(BeIdenticalTo(h3))
		reg.ReleaseHandle(popped)

		_, ok = reg.PopFront()
		Expect(ok).To(BeFalse())
	})
})
