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

var _ = Describe("CrashSweeper", func() {
	var (
		shm       *sgm.ShmManager
		cmds      *sgm.CommandHandleRegistry
		secondary *recordingHandlers
		sweeper   *sgm.CrashSweeper
	)

	BeforeEach(func() {
		shm = sgm.NewShmManager(&stubHandleTranslator{})
		cmds = sgm.NewCommandHandleRegistry(newTestLogger(), shm)
		secondary = &recordingHandlers{}
		sweeper = sgm.NewCrashSweeper(newTestLogger(), cmds, secondary)
	})

	It("reports every waiting command as Unexpected and empties the registry", func() {
		h1, err := cmds.Preprocess(sgm.OpcodeGraphOpen, true)
		Expect(err).NotTo(HaveOccurred())
		cmds.Postprocess()
		cmds.Destroy(h1.Token) // clear active so the next Preprocess is allowed

		h2, err := cmds.Preprocess(sgm.OpcodeGraphPrepare, true)
		Expect(err).NotTo(HaveOccurred())
		cmds.Postprocess()

		swept := sweeper.Sweep()
		Expect(swept).To(Equal(1))
		Expect(cmds.Len()).To(Equal(0))
		Expect(secondary.called()).To(Equal([]string{"GraphPrepareRsp"}))
		Expect(secondary.lastInfo().Status).To(Equal(sgm.StatusUnexpected))
		_, ok := cmds.LookupByToken(h2.Token)
		Expect(ok).To(BeFalse())
	})

	It("skips handles that were never latched in with Postprocess", func() {
		_, err := cmds.Preprocess(sgm.OpcodeGraphOpen, true)
		Expect(err).NotTo(HaveOccurred())
		// No Postprocess call: the handle never entered the waiting list,
		// so PopFront never observes it.

		swept := sweeper.Sweep()
		Expect(swept).To(Equal(0))
		Expect(secondary.called()).To(BeEmpty())
	})

	It("is safe to call with a nil secondary table", func() {
		bare := sgm.NewCrashSweeper(newTestLogger(), cmds, nil)

		_, err := cmds.Preprocess(sgm.OpcodeGraphOpen, true)
		Expect(err).NotTo(HaveOccurred())
		cmds.Postprocess()

		Expect(func() { bare.Sweep() }).NotTo(Panic())
		Expect(cmds.Len()).To(Equal(0))
	})
})
