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

func newTestDriver(router *fakeRouter) *sgm.Driver {
	return sgm.NewDriver(sgm.DriverConfig{
		Logger:           newTestLogger(),
		ContainerID:      1,
		LogID:            1,
		MasterDomainID:   7,
		PacketRouter:     router,
		Cache:            &stubCacheOps{},
		HandleTranslator: &stubHandleTranslator{},
		Primary:          &recordingHandlers{},
		Secondary:        &recordingHandlers{},
		DataPath:         &stubDataPath{},
		PathDelayUpdater: &stubPathDelayUpdater{},
	})
}

var _ = Describe("Driver", func() {
	var (
		router *fakeRouter
		driver *sgm.Driver
	)

	BeforeEach(func() {
		router = &fakeRouter{}
		driver = newTestDriver(router)
	})

	It("registers itself with the packet router on Init and deregisters on Deinit", func() {
		Expect(driver.Init()).To(Succeed())
		Expect(router.callback).NotTo(BeNil())

		Expect(driver.Deinit()).To(Succeed())
		Expect(router.callback).To(BeNil())
	})

	It("classifies inbound packets into the event vs response queue by opcode", func() {
		Expect(driver.Init()).To(Succeed())

		router.callback(&sgm.Packet{Opcode: sgm.OpcodeEventMetadataTracking})
		router.callback(&sgm.Packet{Opcode: sgm.OpcodeBasicRspResult, Token: 0xFFFF})

		// RunOnce drains one event then one response per call; two calls
		// drain both without blocking since both were enqueued already.
		driver.RunOnce()
		driver.RunOnce()
	})

	It("reports live in-flight/registration/subscription counts for diagnostics", func() {
		Expect(driver.Init()).To(Succeed())
		Expect(driver.InFlightCommands()).To(Equal(0))
		Expect(driver.EventRegistrationCount()).To(Equal(0))
		Expect(driver.PathDelaySubscriptionCount()).To(Equal(0))

		_, err := driver.Cmds.Preprocess(sgm.OpcodeGraphOpen, true)
		Expect(err).NotTo(HaveOccurred())
		driver.Cmds.Postprocess()
		Expect(driver.InFlightCommands()).To(Equal(1))

		driver.PathDelay.AddContainerForPath(5, 10)
		Expect(driver.PathDelaySubscriptionCount()).To(Equal(1))
	})

	It("sends a register-container-delay-event packet with the offload event id and flag", func() {
		Expect(driver.Init()).To(Succeed())

		Expect(driver.SendRegisterContainerDelayEvent(42, true)).To(Succeed())
		sent := router.lastSent()
		Expect(sent).NotTo(BeNil())
		Expect(sent.Opcode).To(Equal(sgm.OpcodeRegisterModuleEvents))
		Expect(sent.Payload).To(HaveLen(8))

		Expect(driver.SendRegisterContainerDelayEvent(42, false)).To(Succeed())
		sent = router.lastSent()
		Expect(sent.Opcode).To(Equal(sgm.OpcodeDeregisterModuleEvents))
	})

	It("NotifySatelliteDown drives the crash sweeper over in-flight commands", func() {
		Expect(driver.Init()).To(Succeed())

		_, err := driver.Cmds.Preprocess(sgm.OpcodeGraphPrepare, true)
		Expect(err).NotTo(HaveOccurred())
		driver.Cmds.Postprocess()

		swept := driver.NotifySatelliteDown(7)
		Expect(swept).To(Equal(1))
		Expect(driver.InFlightCommands()).To(Equal(0))
	})
})
