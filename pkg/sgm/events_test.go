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

var _ = Describe("EventHandler", func() {
	var (
		router   *fakeRouter
		events   *sgm.EventRegistrationList
		delay    *sgm.PathDelayRegistry
		sender   *stubEventSender
		updater  *stubPathDelayUpdater
		dataPath *stubDataPath
		handler  *sgm.EventHandler
	)

	BeforeEach(func() {
		router = &fakeRouter{}
		events = &sgm.EventRegistrationList{}
		sender = &stubEventSender{}
		delay = sgm.NewPathDelayRegistry(newTestLogger(), sender)
		updater = &stubPathDelayUpdater{}
		dataPath = &stubDataPath{}
		handler = sgm.NewEventHandler(newTestLogger(), router, events, delay, updater, dataPath)
	})

	It("forwards a verified module-to-client event to the registered client", func() {
		events.Register(&sgm.EventRegistration{
			ModuleInstanceID: 0x10,
			ClientPortID:     0x20,
			ClientDomainID:   0x30,
			ClientToken:      0x40,
			DriverToken:      0x99,
		})

		pkt := &sgm.Packet{
			Opcode:  sgm.OpcodeEventModuleToClient,
			Token:   0x99,
			SrcPort: 0x10,
			Payload: []byte{1, 2, 3, 4},
		}
		handler.Handle(pkt)

		sent := router.lastSent()
		Expect(sent).NotTo(BeNil())
		Expect(sent.DstPort).To(Equal(uint32(0x20)))
		Expect(sent.DstDomain).To(Equal(uint32(0x30)))
		Expect(sent.Token).To(Equal(uint32(0x40)))
		Expect(sent.Payload).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("drops a module-to-client event whose source port does not match the registration", func() {
		events.Register(&sgm.EventRegistration{ModuleInstanceID: 0x10, DriverToken: 0x99})

		pkt := &sgm.Packet{Opcode: sgm.OpcodeEventModuleToClient, Token: 0x99, SrcPort: 0xBAD}
		handler.Handle(pkt)

		Expect(router.sentCount()).To(Equal(0))
	})

	It("dispatches media-format and metadata events to their named handlers", func() {
		handler.Handle(&sgm.Packet{Opcode: sgm.OpcodeEventRdShMemEPMediaFormat, SrcPort: 3})
		handler.Handle(&sgm.Packet{Opcode: sgm.OpcodeEventShMemEPOperatingFrameSize})
		handler.Handle(&sgm.Packet{Opcode: sgm.OpcodeEventMetadataCloneMD})
		handler.Handle(&sgm.Packet{Opcode: sgm.OpcodeEventMetadataTracking})

		Expect(dataPath.called()).To(Equal([]string{
			"MediaFormat", "OperatingFrameSize", "MetadataCloneMD", "MetadataTracking",
		}))
	})

	It("translates a container-delay event's satellite path id and updates the master path delay", func() {
		delay.UpdatePathMap(101, 202, true)

		payload := make([]byte, 12)
		wire.Endian.PutUint32(payload[0:4], 5)
		wire.Endian.PutUint32(payload[4:8], 9)
		wire.Endian.PutUint32(payload[8:12], 202)

		handler.Handle(&sgm.Packet{Opcode: sgm.OpcodeEventContainerDelay, Payload: payload})

		Expect(updater.count()).To(Equal(1))
	})

	It("ignores a container-delay event for an unknown satellite path", func() {
		payload := make([]byte, 12)
		wire.Endian.PutUint32(payload[8:12], 999)
		handler.Handle(&sgm.Packet{Opcode: sgm.OpcodeEventContainerDelay, Payload: payload})

		Expect(updater.count()).To(Equal(0))
	})
})
