/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

// Packet is the in-process representation of a GPR packet: the
// opaque, addressable unit the packet router allocates, sends, and
// frees on this driver's behalf.
type Packet struct {
	SrcDomain  uint32
	DstDomain  uint32
	SrcPort    uint32
	DstPort    uint32
	Token      uint32
	Opcode     Opcode
	Payload    []byte
	ClientData interface{}
}

// PacketCallback receives an inbound packet routed to this
// container's GPR callback; the driver's init wires this to route
// packets into either the event or response queue based on opcode.
type PacketCallback func(pkt *Packet)

// PacketRouter is the framework/packet-router collaborator this
// driver consumes (§6.3): container registration, packet allocation
// and send, and the end-of-life packet operations.
type PacketRouter interface {
	RegisterContainer(containerID uint32, callback PacketCallback, opaque interface{}) error
	DeregisterContainer(containerID uint32) error

	AllocPacket(srcDomain, dstDomain, srcPort, dstPort, token uint32, opcode Opcode, payloadSize uint32, clientData interface{}) (*Packet, error)
	AsyncSend(pkt *Packet) error
	AllocAndSend(srcDomain, dstDomain, srcPort, dstPort, token uint32, opcode Opcode, payload []byte, clientData interface{}) error

	EndCommand(pkt *Packet, status Status)
	FreePacket(pkt *Packet)
}

// RspInfo is what a response or a synthesized crash-sweep failure
// carries to a result handler: the status, the opcode it answers,
// the correlation token, and (for sweep) the cached original
// message for upper layers that need to report which command failed.
type RspInfo struct {
	Status  Status
	Opcode  Opcode
	Token   uint32
	CmdMsg  interface{}
	Payload []byte
}

// ResultHandlerTable is the nine-method interface the two
// result-handler tables (primary and crash-sweep secondary) expose,
// one method per opcode named in §6.4. Using an interface instead of
// a switch-cascade follows the design note on dynamic dispatch by
// opcode.
type ResultHandlerTable interface {
	GraphOpenRsp(info *RspInfo)
	GraphCloseRsp(info *RspInfo)
	GraphPrepareRsp(info *RspInfo)
	GraphStartStopSuspendFlushRsp(info *RspInfo)
	SetGetCfgRsp(info *RspInfo)
	SetGetCfgPackedRsp(info *RspInfo)
	SetPersistentRsp(info *RspInfo)
	SetPersistentPackedRsp(info *RspInfo)
	EventRegRsp(info *RspInfo)
}

// UpdatePathDelay is the collaborator invoked when a container-delay
// event successfully translates a satellite path id to a master path
// id.
type UpdatePathDelay interface {
	UpdatePathDelay(masterPathID uint32, prevDelayUs, newDelayUs uint32)
}
