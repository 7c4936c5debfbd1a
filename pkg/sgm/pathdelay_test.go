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

var _ = Describe("PathDelayRegistry", func() {
	var (
		sender *stubEventSender
		reg    *sgm.PathDelayRegistry
	)

	BeforeEach(func() {
		sender = &stubEventSender{}
		reg = sgm.NewPathDelayRegistry(newTestLogger(), sender)
	})

	It("maps master and satellite path ids both directions", func() {
		reg.UpdatePathMap(10, 20, true)

		m, ok := reg.LookupByMasterID(10)
		Expect(ok).To(BeTrue())
		Expect(m.SatellitePathID).To(Equal(uint32(20)))

		m, ok = reg.LookupBySatelliteID(20)
		Expect(ok).To(BeTrue())
		Expect(m.MasterPathID).To(Equal(uint32(10)))

		reg.UpdatePathMap(10, 20, false)
		_, ok = reg.LookupByMasterID(10)
		Expect(ok).To(BeFalse())
	})

	It("refcounts a satellite container's subscribed paths and registers once", func() {
		reg.AddContainerForPath(5, 10)
		reg.AddContainerForPath(5, 11)
		Expect(reg.SubscriptionCount()).To(Equal(1))

		Expect(reg.Register(true)).To(Succeed())
		Expect(sender.count()).To(Equal(1))

		// Registering again while already registered is a no-op.
		Expect(reg.Register(true)).To(Succeed())
		Expect(sender.count()).To(Equal(1))
	})

	It("deregisters a container only once its last refcounted path is destroyed", func() {
		reg.AddContainerForPath(5, 10)
		reg.AddContainerForPath(5, 11)
		Expect(reg.Register(true)).To(Succeed())
		Expect(sender.count()).To(Equal(1))

		Expect(reg.DestroyPath(10)).To(Succeed())
		Expect(reg.SubscriptionCount()).To(Equal(1), "still subscribed to path 11")
		Expect(sender.count()).To(Equal(1), "no deregister yet, refcount not at zero")

		Expect(reg.DestroyPath(11)).To(Succeed())
		Expect(reg.SubscriptionCount()).To(Equal(0))
		Expect(sender.count()).To(Equal(2), "deregister sent once refcount reaches zero")
	})

	It("DestroyAll clears every subscription and deregisters the registered ones", func() {
		reg.AddContainerForPath(5, 10)
		reg.AddContainerForPath(6, 11)
		Expect(reg.Register(true)).To(Succeed())
		Expect(sender.count()).To(Equal(2))

		reg.DestroyAll(true)
		Expect(reg.SubscriptionCount()).To(Equal(0))
		Expect(sender.count()).To(Equal(4))
	})
})
