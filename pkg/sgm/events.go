/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

import (
	"github.com/audiograph/sgm/pkg/log"
	"github.com/audiograph/sgm/pkg/wire"
)

// EventRegistration correlates an inbound APM_EVENT_MODULE_TO_CLIENT
// event back to the client that asked for it. The driver-assigned
// token is never reused while the registration is live.
type EventRegistration struct {
	ModuleInstanceID uint32
	ClientPortID     uint32
	ClientDomainID   uint32
	ClientToken      uint32
	DriverToken      uint32
}

// EventRegistrationList owns the live EventRegistrations, keyed by
// the driver-assigned token.
type EventRegistrationList struct {
	list List[*EventRegistration]
}

// Register adds a new registration.
func (l *EventRegistrationList) Register(reg *EventRegistration) {
	l.list.AddTail(reg)
}

// Deregister removes the registration with the given driver token.
func (l *EventRegistrationList) Deregister(driverToken uint32) bool {
	return l.list.FindDelete(func(r *EventRegistration) bool { return r.DriverToken == driverToken })
}

// Lookup finds a registration by its driver-assigned token.
func (l *EventRegistrationList) Lookup(driverToken uint32) (*EventRegistration, bool) {
	return l.list.Find(func(r *EventRegistration) bool { return r.DriverToken == driverToken })
}

// Len reports how many registrations are live.
func (l *EventRegistrationList) Len() int {
	return l.list.Len()
}

// ContainerDelayTranslator resolves a satellite path id to a master
// path id for an inbound container-delay event.
type ContainerDelayTranslator interface {
	LookupBySatelliteID(satelliteID uint32) (*PathDelayMapping, bool)
}

// DataPathHandlers are the named collaborators the event handler
// forwards non-generic satellite events to. Each corresponds to one
// of the opcodes listed in the driver's event-dispatch design.
type DataPathHandlers interface {
	MediaFormat(readPortIndex int, payload []byte)
	OperatingFrameSize(payload []byte)
	MetadataCloneMD(payload []byte)
	MetadataTracking(payload []byte)
}

// EventHandler implements component H: dispatch of satellite-
// originated events popped from the event queue.
type EventHandler struct {
	logger     log.Logger
	router     PacketRouter
	events     *EventRegistrationList
	delay      ContainerDelayTranslator
	delayUpd   UpdatePathDelay
	dataPath   DataPathHandlers
}

// NewEventHandler constructs an EventHandler wired to its
// collaborators.
func NewEventHandler(logger log.Logger, router PacketRouter, events *EventRegistrationList, delay ContainerDelayTranslator, delayUpd UpdatePathDelay, dataPath DataPathHandlers) *EventHandler {
	return &EventHandler{
		logger:   logger,
		router:   router,
		events:   events,
		delay:    delay,
		delayUpd: delayUpd,
		dataPath: dataPath,
	}
}

// Handle dispatches one event packet popped from the event queue. No
// command-handle destruction happens here -- the event path never
// touches the command-handle registry.
func (h *EventHandler) Handle(pkt *Packet) {
	switch pkt.Opcode {
	case OpcodeBasicRspResult:
		// Rare, freed silently; kept for protocol generality.
		h.router.FreePacket(pkt)
	case OpcodeEventModuleToClient:
		h.handleModuleToClient(pkt)
	case OpcodeEventRdShMemEPMediaFormat:
		readPort := int(pkt.SrcPort)
		h.dataPath.MediaFormat(readPort, pkt.Payload)
		h.router.FreePacket(pkt)
	case OpcodeEventShMemEPOperatingFrameSize:
		h.dataPath.OperatingFrameSize(pkt.Payload)
		h.router.FreePacket(pkt)
	case OpcodeEventMetadataCloneMD:
		h.dataPath.MetadataCloneMD(pkt.Payload)
		h.router.FreePacket(pkt)
	case OpcodeEventMetadataTracking:
		h.dataPath.MetadataTracking(pkt.Payload)
		h.router.FreePacket(pkt)
	case OpcodeEventContainerDelay:
		h.handleContainerDelay(pkt)
		h.router.FreePacket(pkt)
	default:
		h.router.EndCommand(pkt, StatusUnsupported)
	}
}

func (h *EventHandler) handleModuleToClient(pkt *Packet) {
	if pkt.Token == 0 {
		// Driver-internal offload-config event; currently only the
		// container-delay event is recognized and it arrives as its
		// own opcode (OpcodeEventContainerDelay), so any other
		// zero-token module-to-client event is unrecognized.
		h.logger.Debugw("unrecognized internal offload-config event", "opcode", pkt.Opcode)
		h.router.FreePacket(pkt)
		return
	}

	reg, ok := h.events.Lookup(pkt.Token)
	if !ok || reg.ModuleInstanceID != pkt.SrcPort {
		// Verification failure is BadParam: drop silently, no
		// end-command, no response sent.
		h.logger.Debugw("module-to-client event failed verification, dropping", "token", pkt.Token, "srcPort", pkt.SrcPort)
		h.router.FreePacket(pkt)
		return
	}

	out, err := h.router.AllocPacket(pkt.DstDomain, reg.ClientDomainID, pkt.SrcPort, reg.ClientPortID, reg.ClientToken, OpcodeEventModuleToClient, uint32(len(pkt.Payload)), nil)
	if err != nil {
		h.logger.Errorw("failed to allocate module-to-client forward packet", "error", err)
		h.router.FreePacket(pkt)
		return
	}
	copy(out.Payload, pkt.Payload)
	if err := h.router.AsyncSend(out); err != nil {
		h.logger.Errorw("failed to forward module-to-client event", "error", err)
	}
	h.router.FreePacket(pkt)
}

// ContainerDelayEvent is the payload shape of an
// OpcodeEventContainerDelay packet.
type ContainerDelayEvent struct {
	PrevDelayUs     uint32
	NewDelayUs      uint32
	PathIDSatellite uint32
}

func (h *EventHandler) handleContainerDelay(pkt *Packet) {
	if len(pkt.Payload) < 12 {
		h.logger.Errorw("container-delay event payload too short")
		return
	}
	ev := ContainerDelayEvent{
		PrevDelayUs:     wire.Endian.Uint32(pkt.Payload[0:4]),
		NewDelayUs:      wire.Endian.Uint32(pkt.Payload[4:8]),
		PathIDSatellite: wire.Endian.Uint32(pkt.Payload[8:12]),
	}

	mapping, ok := h.delay.LookupBySatelliteID(ev.PathIDSatellite)
	if !ok {
		// The master path may have been legitimately destroyed
		// concurrently -- log and return success, do not fail.
		h.logger.Debugw("container-delay event for unknown satellite path, ignoring", "satellitePathID", ev.PathIDSatellite)
		return
	}
	h.delayUpd.UpdatePathDelay(mapping.MasterPathID, ev.PrevDelayUs, ev.NewDelayUs)
}
