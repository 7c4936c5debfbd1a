/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

import (
	"github.com/audiograph/sgm/pkg/log"
	"github.com/audiograph/sgm/pkg/wire"
)

// DefaultInBandThreshold is OLC_IPC_MAX_IN_BAND_PAYLOAD_SIZE's
// default value. The original sets this deliberately low for one
// build configuration ("set to value low to make everything out of
// band"); nothing in this driver's contract requires it to be fixed,
// so it is a configurable field on Dispatcher rather than a compile
// time constant.
const DefaultInBandThreshold = 256

// PayloadBuilder is the two-pass measure-then-fill contract the
// dispatcher drives: Size is called once to decide in-band vs OOB and
// to size the destination buffer; Fill is called exactly once
// afterward to write the payload into that buffer.
type PayloadBuilder interface {
	Size() (uint32, error)
	Fill(dest []byte) error
}

// DispatchTarget selects which variant of the transport send the
// dispatcher uses: persistent-config commands target the satellite
// APM port explicitly; module-targeted set/get uses the destination
// module instance id.
type DispatchTarget struct {
	SrcDomain         uint32
	DstDomain         uint32
	SrcPort           uint32
	DstPort           uint32
	SatelliteDomainID uint32
	IsAPMDestination  bool
	SecondaryOpcode   Opcode
	HasSecondary      bool
	ClientData        interface{}
}

// Dispatcher implements component F: for every outgoing command, size
// the payload, choose in-band vs OOB, allocate buffers, fill the APM
// command header, pack the payload, flush cache on OOB, and send --
// bailing out on any failure before the send succeeds.
type Dispatcher struct {
	logger          log.Logger
	cmds            *CommandHandleRegistry
	shm             *ShmManager
	cache           CacheOps
	router          PacketRouter
	InBandThreshold uint32
}

// NewDispatcher wires a Dispatcher to its collaborators.
func NewDispatcher(logger log.Logger, cmds *CommandHandleRegistry, shm *ShmManager, cache CacheOps, router PacketRouter) *Dispatcher {
	return &Dispatcher{
		logger:          logger,
		cmds:            cmds,
		shm:             shm,
		cache:           cache,
		router:          router,
		InBandThreshold: DefaultInBandThreshold,
	}
}

// Dispatch sends opcode's payload, built by builder, to target.
func (d *Dispatcher) Dispatch(opcode Opcode, builder PayloadBuilder, target DispatchTarget) (*CommandHandle, error) {
	size, err := builder.Size()
	if err != nil {
		return nil, errBadParam(err, "dispatch: failed to size payload")
	}

	isInband := size <= d.InBandThreshold

	h, err := d.cmds.Preprocess(opcode, isInband)
	if err != nil {
		return nil, err
	}
	h.IsAPMDestination = target.IsAPMDestination
	if target.HasSecondary {
		h.SecondaryOpcode = target.SecondaryOpcode
		h.HasSecondary = true
	}

	if !isInband {
		region, err := d.shm.Alloc(size, target.SatelliteDomainID)
		if err != nil {
			d.cmds.BailOut()
			return nil, err
		}
		h.Region = region
	}

	var header wire.CommandHeader
	var fillDest []byte
	var pkt *Packet

	if isInband {
		header = wire.InbandCommandHeader(size)
		pkt, err = d.router.AllocPacket(target.SrcDomain, target.DstDomain, target.SrcPort, target.DstPort, h.Token, opcode, wire.CommandHeaderSize+size, target.ClientData)
		if err != nil {
			d.cmds.BailOut()
			return nil, errTransportFailed(err, "dispatch: packet allocation failed")
		}
		header.Put(pkt.Payload[0:wire.CommandHeaderSize])
		fillDest = pkt.Payload[wire.CommandHeaderSize:]
	} else {
		handle, offset := h.Region.Remote()
		header = wire.OOBCommandHeader(offset, handle, size)
		pkt, err = d.router.AllocPacket(target.SrcDomain, target.DstDomain, target.SrcPort, target.DstPort, h.Token, opcode, wire.CommandHeaderSize, target.ClientData)
		if err != nil {
			d.cmds.BailOut()
			return nil, errTransportFailed(err, "dispatch: packet allocation failed")
		}
		header.Put(pkt.Payload[0:wire.CommandHeaderSize])
		fillDest = h.Region.Bytes()
	}

	if err := builder.Fill(fillDest); err != nil {
		d.router.FreePacket(pkt)
		d.cmds.BailOut()
		return nil, errBadParam(err, "dispatch: failed to fill payload")
	}
	h.Payload = pkt.Payload

	if !isInband {
		if err := d.cache.Flush(h.Region.LocalVA, size); err != nil {
			d.router.FreePacket(pkt)
			d.cmds.BailOut()
			return nil, errPanic(err, "dispatch: cache flush failed")
		}
	}

	if err := d.router.AsyncSend(pkt); err != nil {
		d.router.FreePacket(pkt)
		d.cmds.BailOut()
		return nil, errTransportFailed(err, "dispatch: async send failed")
	}

	d.cmds.Postprocess()
	return h, nil
}
