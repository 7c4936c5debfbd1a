/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/audiograph/sgm/pkg/sgm"
	"github.com/audiograph/sgm/pkg/wire"
)

func basicRspResultPayload(rspOpcode sgm.Opcode, status sgm.Status) []byte {
	b := make([]byte, 8)
	wire.Endian.PutUint32(b[0:4], uint32(rspOpcode))
	wire.Endian.PutUint32(b[4:8], uint32(status))
	return b
}

var _ = Describe("ResponseRouter", func() {
	var (
		router    *fakeRouter
		cache     *stubCacheOps
		shm       *sgm.ShmManager
		cmds      *sgm.CommandHandleRegistry
		primary   *recordingHandlers
		pathDelay *sgm.PathDelayRegistry
		sender    *stubEventSender
		rr        *sgm.ResponseRouter
	)

	BeforeEach(func() {
		router = &fakeRouter{}
		cache = &stubCacheOps{}
		shm = sgm.NewShmManager(&stubHandleTranslator{})
		cmds = sgm.NewCommandHandleRegistry(newTestLogger(), shm)
		primary = &recordingHandlers{}
		sender = &stubEventSender{}
		pathDelay = sgm.NewPathDelayRegistry(newTestLogger(), sender)
		rr = sgm.NewResponseRouter(newTestLogger(), cmds, cache, router, primary, pathDelay)
	})

	It("routes a GRAPH_OPEN basic result to GraphOpenRsp and destroys the handle", func() {
		h, err := cmds.Preprocess(sgm.OpcodeGraphOpen, true)
		Expect(err).NotTo(HaveOccurred())
		cmds.Postprocess()

		pkt := &sgm.Packet{
			Opcode:  sgm.OpcodeBasicRspResult,
			Token:   h.Token,
			Payload: basicRspResultPayload(sgm.OpcodeGraphOpen, sgm.StatusOK),
		}
		rr.Handle(pkt)

		Expect(primary.called()).To(Equal([]string{"GraphOpenRsp"}))
		Expect(primary.lastInfo().Status).To(Equal(sgm.StatusOK))
		Expect(cmds.Len()).To(Equal(0))
	})

	It("drops a response whose token matches no in-flight command", func() {
		pkt := &sgm.Packet{
			Opcode:  sgm.OpcodeBasicRspResult,
			Token:   0xFFFF,
			Payload: basicRspResultPayload(sgm.OpcodeGraphOpen, sgm.StatusOK),
		}
		rr.Handle(pkt)
		Expect(primary.called()).To(BeEmpty())
	})

	It("keeps an event-registration handle alive when the response token is zero", func() {
		h, err := cmds.Preprocess(sgm.OpcodeRegisterModuleEvents, true)
		Expect(err).NotTo(HaveOccurred())
		cmds.Postprocess()

		// Force the in-flight handle's correlation to zero, mirroring a
		// driver-internal registration whose response is uncorrelated.
		h.Token = 0

		pkt := &sgm.Packet{
			Opcode:  sgm.OpcodeBasicRspResult,
			Token:   0,
			Payload: basicRspResultPayload(sgm.OpcodeRegisterModuleEvents, sgm.StatusOK),
		}
		rr.Handle(pkt)

		Expect(primary.called()).To(Equal([]string{"EventRegRsp"}))
		Expect(cmds.Len()).To(Equal(1), "zero-token registration handle is not destroyed")
	})

	It("copies an OOB GET_CFG response back into the region and reports SetGetCfgRsp", func() {
		h, err := cmds.Preprocess(sgm.OpcodeGetCfg, false)
		Expect(err).NotTo(HaveOccurred())
		region, err := shm.Alloc(32, 9)
		Expect(err).NotTo(HaveOccurred())
		h.Region = region
		cmds.Postprocess()

		pkt := &sgm.Packet{Opcode: sgm.OpcodeCmdRspGetCfg, Token: h.Token}
		rr.Handle(pkt)

		Expect(cache.invalidated).To(Equal(1))
		Expect(primary.called()).To(Equal([]string{"SetGetCfgRsp"}))
		Expect(primary.lastInfo().Status).To(Equal(sgm.StatusOK))
		Expect(cmds.Len()).To(Equal(0))
	})

	It("reports NotMapped when an OOB GET_CFG response arrives for a handle with no region", func() {
		h, err := cmds.Preprocess(sgm.OpcodeGetCfg, false)
		Expect(err).NotTo(HaveOccurred())
		cmds.Postprocess()

		pkt := &sgm.Packet{Opcode: sgm.OpcodeCmdRspGetCfg, Token: h.Token}
		rr.Handle(pkt)

		Expect(primary.lastInfo().Status).To(Equal(sgm.StatusNotMapped))
	})

	It("routes a module-destined SET_CFG_PACKED basic result to SetGetCfgPackedRsp", func() {
		h, err := cmds.Preprocess(sgm.OpcodeSetCfgPacked, true)
		Expect(err).NotTo(HaveOccurred())
		cmds.Postprocess()

		pkt := &sgm.Packet{
			Opcode:  sgm.OpcodeBasicRspResult,
			Token:   h.Token,
			Payload: basicRspResultPayload(sgm.OpcodeSetCfgPacked, sgm.StatusOK),
		}
		rr.Handle(pkt)

		Expect(primary.called()).To(Equal([]string{"SetGetCfgPackedRsp"}))
		Expect(cmds.Len()).To(Equal(0))
	})

	It("updates the path-delay registry from a successful GET_PATH_DELAY response and destroys the handle", func() {
		h, err := cmds.Preprocess(sgm.OpcodeGetPathDelay, true)
		Expect(err).NotTo(HaveOccurred())
		h.Extension = &sgm.PathDelayGetExtension{MasterPathID: 100, SatelliteContainerID: 7}
		cmds.Postprocess()

		body, err := wire.PackPathDelayGet(sgm.APMModuleInstanceID, wire.PathDelayRecord{PathID: 55, DelayUs: 30})
		Expect(err).NotTo(HaveOccurred())

		pkt := &sgm.Packet{Opcode: sgm.OpcodeCmdRspGetCfg, Token: h.Token, Payload: body}
		rr.Handle(pkt)

		mapping, ok := pathDelay.LookupByMasterID(100)
		Expect(ok).To(BeTrue())
		Expect(mapping.SatellitePathID).To(Equal(uint32(55)))
		Expect(pathDelay.SubscriptionCount()).To(Equal(1))
		Expect(sender.count()).To(Equal(1))
		Expect(cmds.Len()).To(Equal(0))
	})

	It("does not touch the path-delay registry when a GET_PATH_DELAY basic result reports failure", func() {
		h, err := cmds.Preprocess(sgm.OpcodeGetPathDelay, true)
		Expect(err).NotTo(HaveOccurred())
		h.Extension = &sgm.PathDelayGetExtension{MasterPathID: 100, SatelliteContainerID: 7}
		cmds.Postprocess()

		pkt := &sgm.Packet{
			Opcode:  sgm.OpcodeBasicRspResult,
			Token:   h.Token,
			Payload: basicRspResultPayload(sgm.OpcodeGetPathDelay, sgm.StatusNotMapped),
		}
		rr.Handle(pkt)

		_, ok := pathDelay.LookupByMasterID(100)
		Expect(ok).To(BeFalse())
		Expect(cmds.Len()).To(Equal(0), "failed GET_PATH_DELAY must not leak its handle")
	})
})
