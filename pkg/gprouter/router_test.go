/*
Copyright (C) 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package gprouter_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/audiograph/sgm/pkg/gprouter"
	"github.com/audiograph/sgm/pkg/log"
	"github.com/audiograph/sgm/pkg/log/level"
	"github.com/audiograph/sgm/pkg/sgm"
)

func newTestLogger() log.Logger {
	return log.NewSimpleLogger(log.SimpleConfig{Level: level.Min, Output: GinkgoWriter})
}

var _ = Describe("GPR Router", func() {
	var logger log.Logger

	BeforeEach(func() {
		logger = newTestLogger()
	})

	Describe("local delivery", func() {
		It("routes a packet to the registered destination domain", func() {
			r, err := gprouter.New(logger)
			Expect(err).NotTo(HaveOccurred())

			received := make(chan *sgm.Packet, 1)
			err = r.RegisterContainer(42, func(pkt *sgm.Packet) {
				received <- pkt
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			pkt, err := r.AllocPacket(1, 42, 7, 8, 100, sgm.OpcodeGraphOpen, 16, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(pkt.Payload).To(HaveLen(16))

			Expect(r.AsyncSend(pkt)).To(Succeed())
			Eventually(received).Should(Receive(Equal(pkt)))
		})

		It("fails with no route when the destination is unknown", func() {
			r, err := gprouter.New(logger)
			Expect(err).NotTo(HaveOccurred())

			pkt, err := r.AllocPacket(1, 99, 7, 8, 100, sgm.OpcodeGraphOpen, 4, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.AsyncSend(pkt)).To(HaveOccurred())
		})

		It("stops delivering after deregistration", func() {
			r, err := gprouter.New(logger)
			Expect(err).NotTo(HaveOccurred())

			Expect(r.RegisterContainer(5, func(pkt *sgm.Packet) {}, nil)).To(Succeed())
			Expect(r.DeregisterContainer(5)).To(Succeed())

			pkt, err := r.AllocPacket(1, 5, 7, 8, 100, sgm.OpcodeGraphOpen, 4, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.AsyncSend(pkt)).To(HaveOccurred())
		})
	})

	Describe("AllocAndSend", func() {
		It("copies the payload and delivers it", func() {
			r, err := gprouter.New(logger)
			Expect(err).NotTo(HaveOccurred())

			received := make(chan *sgm.Packet, 1)
			Expect(r.RegisterContainer(1, func(pkt *sgm.Packet) { received <- pkt }, nil)).To(Succeed())

			payload := []byte{1, 2, 3, 4}
			Expect(r.AllocAndSend(0, 1, 0, 0, 55, sgm.OpcodeSetCfg, payload, nil)).To(Succeed())

			var pkt *sgm.Packet
			Eventually(received).Should(Receive(&pkt))
			Expect(pkt.Payload).To(Equal(payload))
			Expect(pkt.Token).To(Equal(uint32(55)))
		})
	})

	Describe("remote domains", func() {
		It("forwards to a registered remote sender when no local container matches", func() {
			r, err := gprouter.New(logger)
			Expect(err).NotTo(HaveOccurred())

			sent := make(chan *sgm.Packet, 1)
			r.RegisterRemoteDomain(3, remoteSenderFunc(func(pkt *sgm.Packet) error {
				sent <- pkt
				return nil
			}))

			pkt, err := r.AllocPacket(1, 3, 0, 0, 1, sgm.OpcodeGraphClose, 0, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.AsyncSend(pkt)).To(Succeed())
			Eventually(sent).Should(Receive(Equal(pkt)))

			r.DeregisterRemoteDomain(3)
			pkt2, err := r.AllocPacket(1, 3, 0, 0, 2, sgm.OpcodeGraphClose, 0, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.AsyncSend(pkt2)).To(HaveOccurred())
		})
	})
})

type remoteSenderFunc func(pkt *sgm.Packet) error

func (f remoteSenderFunc) Send(pkt *sgm.Packet) error { return f(pkt) }
