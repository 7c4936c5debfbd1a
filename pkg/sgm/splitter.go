/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

import (
	"github.com/audiograph/sgm/pkg/wire"
)

// SPDMMaxIOPorts bounds the fixed-capacity IPC connection slot
// tables. The original names this SPDM_MAX_IO_PORTS without
// specifying a value in the distilled contract; a production build
// pulls the real constant from the framework header.
const SPDMMaxIOPorts = 32

// Membership classifies a module instance relative to this
// container's open-payload split.
type Membership int

const (
	MembershipExternal Membership = iota
	MembershipLocal
	MembershipSatellite
)

// ModuleDesc is a module entry as the splitter consumes it: enough to
// classify it and to forward it into the right image's module list.
type ModuleDesc struct {
	InstanceID  uint32
	ModuleID    uint32
	ContainerID uint32
	SubGraphID  uint32
}

// ConnectionKind distinguishes the two IPC slot-table kinds a
// cross-domain connection can land in.
type ConnectionKind int

const (
	IPCReadClient ConnectionKind = iota
	IPCWriteClient
)

// SlotConnection is one entry of a fixed-capacity IPC connection slot
// table.
type SlotConnection struct {
	SlotIndex     int
	Kind          ConnectionKind
	SrcInstanceID uint32
	DstInstanceID uint32
	InUse         bool
}

// ConnectionSlotTable is a fixed-capacity array; Add uses the first
// free entry and fails with BadParam on overflow, matching the
// splitter's slot-table semantics exactly.
type ConnectionSlotTable struct {
	kind  ConnectionKind
	slots []SlotConnection
}

// NewConnectionSlotTable allocates a table with the given capacity.
func NewConnectionSlotTable(kind ConnectionKind, capacity int) *ConnectionSlotTable {
	return &ConnectionSlotTable{kind: kind, slots: make([]SlotConnection, capacity)}
}

// Add inserts a connection into the first free slot.
func (t *ConnectionSlotTable) Add(src, dst uint32) error {
	for i := range t.slots {
		if !t.slots[i].InUse {
			t.slots[i] = SlotConnection{SlotIndex: i, Kind: t.kind, SrcInstanceID: src, DstInstanceID: dst, InUse: true}
			return nil
		}
	}
	return errBadParam(nil, "connection slot table overflow")
}

// Active returns the populated slots, in slot order.
func (t *ConnectionSlotTable) Active() []SlotConnection {
	active := make([]SlotConnection, 0, len(t.slots))
	for _, s := range t.slots {
		if s.InUse {
			active = append(active, s)
		}
	}
	return active
}

// ControlLink is a control-link entry as the splitter consumes it:
// its endpoints drive the cross-master-satellite classification; its
// properties are what actually gets forwarded on the wire.
type ControlLink struct {
	LinkID        uint32
	SrcInstanceID uint32
	DstInstanceID uint32
	Properties    []wire.Property
}

func (c *ControlLink) toWire() *wire.ModuleCtrlLinkCfg {
	return &wire.ModuleCtrlLinkCfg{LinkID: c.LinkID, Properties: c.Properties}
}

// ParamDataEntry is a param-data blob tagged with the module instance
// it belongs to, so the splitter can route it to the right image.
type ParamDataEntry struct {
	InstanceID uint32
	Blob       []byte
}

// OpenPayload is the combined APM open payload the splitter consumes:
// sub-graphs, both-domain module lists, property cfgs, connections,
// IMCL peers, control links, param-data, satellite container cfgs,
// and the mixed-heap data/control link array.
type OpenPayload struct {
	SubGraphs           []*wire.SubGraphCfg
	Modules             []ModuleDesc
	PropCfgs            []*wire.ModulePropCfg
	Connections         []ModuleConnectionDesc
	IMCLPeers           []*wire.IMCLPeerInfo
	ControlLinks        []*ControlLink
	ParamData           []ParamDataEntry
	SatelliteContainers []*wire.ContainerCfg
	MixedHeapDataLinks  []ModuleConnectionDesc
}

// ModuleConnectionDesc is one {src_iid, dst_iid} connection as the
// splitter consumes it, before it is classified and converted to
// either a forwarded wire.ModuleConnection or a slot-table entry.
type ModuleConnectionDesc struct {
	SrcInstanceID uint32
	DstInstanceID uint32
}

func (d ModuleConnectionDesc) toWire() *wire.ModuleConnection {
	return &wire.ModuleConnection{SrcInstanceID: d.SrcInstanceID, DstInstanceID: d.DstInstanceID}
}

// SplitImage is one of the two disjoint per-domain sub-payloads the
// splitter produces.
type SplitImage struct {
	SubGraphs           []*wire.SubGraphCfg
	Modules             []ModuleDesc
	PropCfgs            []*wire.ModulePropCfg
	Connections         []*wire.ModuleConnection
	ControlLinks        []*wire.ModuleCtrlLinkCfg
	ParamData           []ParamDataEntry
	SatelliteContainers []*wire.ContainerCfg
	IMCLPeers           []*wire.IMCLPeerInfo
	MixedHeapDataLinks  []*wire.ModuleConnection
}

// SplitResult is the splitter's full output: the two images plus the
// two IPC connection slot tables for connections that cross the
// master/satellite boundary without belonging to either image.
type SplitResult struct {
	LocalImage     SplitImage
	SatelliteImage SplitImage
	IPCWrite       *ConnectionSlotTable
	IPCRead        *ConnectionSlotTable
}

// Splitter implements component E: given a combined open payload, it
// derives the local and satellite sub-payloads and the cross-domain
// IPC connection tables.
type Splitter struct{}

// NewSplitter constructs a Splitter. It carries no state; classifying
// modules and connections needs only the payload and the local
// container id.
func NewSplitter() *Splitter {
	return &Splitter{}
}

// Split partitions payload relative to selfContainerID.
func (s *Splitter) Split(selfContainerID uint32, payload *OpenPayload) (*SplitResult, error) {
	instanceContainer := make(map[uint32]uint32, len(payload.Modules))
	for _, m := range payload.Modules {
		instanceContainer[m.InstanceID] = m.ContainerID
	}
	satContainers := NewInstanceSet()
	for _, c := range payload.SatelliteContainers {
		satContainers.Add(c.ContainerID)
	}

	membership := func(instanceID uint32) Membership {
		containerID, ok := instanceContainer[instanceID]
		if !ok {
			return MembershipExternal
		}
		if containerID == selfContainerID {
			return MembershipLocal
		}
		if satContainers.Contains(containerID) {
			return MembershipSatellite
		}
		return MembershipExternal
	}

	result := &SplitResult{
		SatelliteImage: SplitImage{
			// Sub-graph list is forwarded unchanged to the satellite
			// image only.
			SubGraphs:           payload.SubGraphs,
			SatelliteContainers: payload.SatelliteContainers,
			IMCLPeers:           payload.IMCLPeers,
		},
		IPCWrite: NewConnectionSlotTable(IPCWriteClient, SPDMMaxIOPorts),
		IPCRead:  NewConnectionSlotTable(IPCReadClient, SPDMMaxIOPorts),
	}
	result.LocalImage.MixedHeapDataLinks = make([]*wire.ModuleConnection, 0, len(payload.MixedHeapDataLinks))
	for _, d := range payload.MixedHeapDataLinks {
		result.LocalImage.MixedHeapDataLinks = append(result.LocalImage.MixedHeapDataLinks, d.toWire())
	}

	for _, m := range payload.Modules {
		switch membership(m.InstanceID) {
		case MembershipLocal:
			result.LocalImage.Modules = append(result.LocalImage.Modules, m)
		case MembershipSatellite:
			result.SatelliteImage.Modules = append(result.SatelliteImage.Modules, m)
		}
	}

	for _, p := range payload.PropCfgs {
		if p == nil {
			return nil, errBadParam(nil, "splitter: nil module-prop-cfg entry")
		}
		switch membership(p.InstanceID) {
		case MembershipLocal:
			result.LocalImage.PropCfgs = append(result.LocalImage.PropCfgs, p)
		case MembershipSatellite:
			result.SatelliteImage.PropCfgs = append(result.SatelliteImage.PropCfgs, p)
		}
	}

	for _, pd := range payload.ParamData {
		switch membership(pd.InstanceID) {
		case MembershipLocal:
			result.LocalImage.ParamData = append(result.LocalImage.ParamData, pd)
		case MembershipSatellite:
			result.SatelliteImage.ParamData = append(result.SatelliteImage.ParamData, pd)
		}
	}

	for _, c := range payload.Connections {
		src := membership(c.SrcInstanceID)
		dst := membership(c.DstInstanceID)
		switch {
		case src == MembershipSatellite && dst == MembershipSatellite:
			result.SatelliteImage.Connections = append(result.SatelliteImage.Connections, c.toWire())
		case src == MembershipLocal && dst == MembershipLocal:
			result.LocalImage.Connections = append(result.LocalImage.Connections, c.toWire())
		case src == MembershipExternal && dst == MembershipLocal:
			// Ingress: the local container is a destination from
			// another container.
			result.LocalImage.Connections = append(result.LocalImage.Connections, c.toWire())
		case src == MembershipLocal && dst == MembershipExternal:
			// Egress.
			result.LocalImage.Connections = append(result.LocalImage.Connections, c.toWire())
		case src == MembershipLocal && dst == MembershipSatellite:
			if err := result.IPCWrite.Add(c.SrcInstanceID, c.DstInstanceID); err != nil {
				return nil, err
			}
		case src == MembershipSatellite && dst == MembershipLocal:
			if err := result.IPCRead.Add(c.SrcInstanceID, c.DstInstanceID); err != nil {
				return nil, err
			}
		default:
			return nil, errBadParam(nil, "splitter: connection endpoints do not classify into any known path")
		}
	}

	for _, link := range payload.ControlLinks {
		if link == nil {
			return nil, errBadParam(nil, "splitter: nil control-link entry")
		}
		srcM := membership(link.SrcInstanceID)
		dstM := membership(link.DstInstanceID)
		if srcM != MembershipSatellite && dstM != MembershipSatellite {
			return nil, errBadParam(nil, "splitter: control link has no satellite endpoint")
		}
		// The local container carries no cross-domain control links
		// in this design; every control link belongs to the
		// satellite image.
		result.SatelliteImage.ControlLinks = append(result.SatelliteImage.ControlLinks, link.toWire())
	}

	return result, nil
}
