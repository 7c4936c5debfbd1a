/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package wire

import (
	"github.com/pkg/errors"
)

// ErrMissingEntry is returned by every Pack* function when one of the
// caller-provided per-entry pointers is nil. Per the driver's error
// design, a missing per-entry pointer during sizing or filling fails
// the whole command with BadParam; callers translate this sentinel
// into that Kind.
var ErrMissingEntry = errors.New("wire: missing per-entry pointer")

// APM parameter ids this module's payload kinds wrap themselves with.
// These are a given binary contract with the satellite APM (§6.2); a
// production build pulls the real values from the framework's own
// header instead of redefining them here.
const (
	ParamIDSubGraphConfig      uint32 = 0x0B001
	ParamIDContainerConfig     uint32 = 0x0B002
	ParamIDModulesList         uint32 = 0x0B003
	ParamIDModuleProp          uint32 = 0x0B004
	ParamIDModuleConn          uint32 = 0x0B005
	ParamIDIMCLPeerDomainInfo  uint32 = 0x0B006
	ParamIDModuleCtrlLinkCfg   uint32 = 0x0B007
	ParamIDSubGraphList        uint32 = 0x0B008
	ParamIDOffloadGraphPathDelay uint32 = 0x0B009
)

// SubGraphCfg is one entry of the sub-graph config payload.
type SubGraphCfg struct {
	SubGraphID uint32
	Properties []Property
}

// ContainerCfg is one entry of the container config payload. A
// PROC_DOMAIN property, if present, is learned and stripped by
// PackContainerConfig rather than forwarded.
type ContainerCfg struct {
	ContainerID uint32
	Properties  []Property
}

// ModuleListEntry is one module within a ModuleList.
type ModuleListEntry struct {
	InstanceID uint32
	ModuleID   uint32
}

// ModuleList is the flat module-list-for-one-sub-graph layout: header
// plus N module entries, no property tails.
type ModuleList struct {
	SubGraphID uint32
	Modules    []ModuleListEntry
}

// ModulePropCfg is one entry of the module-properties payload.
type ModulePropCfg struct {
	InstanceID uint32
	Properties []Property
}

// ModuleConnection is one fixed-size connection record.
type ModuleConnection struct {
	SrcInstanceID uint32
	SrcPortID     uint32
	DstInstanceID uint32
	DstPortID     uint32
}

const moduleConnectionSize = 16

// IMCLPeerInfo is one fixed-size IMCL peer record.
type IMCLPeerInfo struct {
	ModuleInstanceID     uint32
	PeerModuleInstanceID uint32
	PeerDomainID         uint32
}

const imclPeerInfoSize = 12

// ModuleCtrlLinkCfg is one entry of the module control-link config
// payload.
type ModuleCtrlLinkCfg struct {
	LinkID     uint32
	Properties []Property
}

// PathDelayRecord is the single path definition carried by a
// path-delay get/response payload.
type PathDelayRecord struct {
	PathID  uint32
	DelayUs uint32
}

const pathDelayRecordSize = 8

func measurePropList(props []Property) uint32 {
	var n uint32
	for _, p := range props {
		n += p.Size()
	}
	return n
}

func writePropList(b []byte, props []Property) uint32 {
	var off uint32
	for _, p := range props {
		off += p.Put(b[off:])
	}
	return off
}

// buildParam allocates an 8-byte-padded param block with the given
// header fields and lets writeBody fill exactly bodyLen bytes after
// the header.
func buildParam(moduleInstanceID, paramID, bodyLen uint32, writeBody func([]byte)) []byte {
	total := ParamHeaderSize + bodyLen
	padded := Align8(total)
	buf := make([]byte, padded)
	h := ParamHeader{
		ModuleInstanceID: moduleInstanceID,
		ParamID:          paramID,
		ParamSize:        padded - ParamHeaderSize,
	}
	h.Put(buf[0:ParamHeaderSize])
	if bodyLen > 0 {
		writeBody(buf[ParamHeaderSize : ParamHeaderSize+bodyLen])
	}
	return buf
}

// PackSubGraphConfig serializes an array of sub-graph-cfg objects,
// each followed inline by its property list, wrapped in a single
// APM_PARAM_ID_SUB_GRAPH_CONFIG param block.
func PackSubGraphConfig(moduleInstanceID uint32, subGraphs []*SubGraphCfg) ([]byte, error) {
	// Pass one: measure.
	bodyLen := uint32(4)
	for _, sg := range subGraphs {
		if sg == nil {
			return nil, ErrMissingEntry
		}
		bodyLen += 8 + measurePropList(sg.Properties)
	}

	// Pass two: fill.
	return buildParam(moduleInstanceID, ParamIDSubGraphConfig, bodyLen, func(b []byte) {
		Endian.PutUint32(b[0:4], uint32(len(subGraphs)))
		off := uint32(4)
		for _, sg := range subGraphs {
			Endian.PutUint32(b[off:off+4], sg.SubGraphID)
			Endian.PutUint32(b[off+4:off+8], uint32(len(sg.Properties)))
			off += 8
			off += writePropList(b[off:], sg.Properties)
		}
	}), nil
}

// PackContainerConfig serializes an array of container-cfg objects.
// Any PROC_DOMAIN property is stripped from the forwarded copy; the
// domain value it carries is returned. It is an error for two
// container entries to disagree about the domain.
func PackContainerConfig(moduleInstanceID uint32, containers []*ContainerCfg) ([]byte, uint32, error) {
	var domain uint32
	haveDomain := false
	stripped := make([][]Property, len(containers))

	// Pass one: measure, stripping PROC_DOMAIN and learning the
	// satellite domain id.
	bodyLen := uint32(4)
	for i, c := range containers {
		if c == nil {
			return nil, 0, ErrMissingEntry
		}
		kept := make([]Property, 0, len(c.Properties))
		for _, p := range c.Properties {
			if p.ID == PropDomainPropID {
				d, ok := ProcDomainOf(p)
				if !ok {
					return nil, 0, errors.New("wire: malformed PROC_DOMAIN property")
				}
				if haveDomain && d != domain {
					return nil, 0, errors.New("wire: conflicting PROC_DOMAIN values across container configs")
				}
				domain = d
				haveDomain = true
				continue
			}
			kept = append(kept, p)
		}
		stripped[i] = kept
		bodyLen += 8 + measurePropList(kept)
	}

	// Pass two: fill.
	buf := buildParam(moduleInstanceID, ParamIDContainerConfig, bodyLen, func(b []byte) {
		Endian.PutUint32(b[0:4], uint32(len(containers)))
		off := uint32(4)
		for i, c := range containers {
			Endian.PutUint32(b[off:off+4], c.ContainerID)
			Endian.PutUint32(b[off+4:off+8], uint32(len(stripped[i])))
			off += 8
			off += writePropList(b[off:], stripped[i])
		}
	})
	return buf, domain, nil
}

// PackModuleList serializes the flat module-list layout for one
// sub-graph.
func PackModuleList(moduleInstanceID uint32, list *ModuleList) ([]byte, error) {
	if list == nil {
		return nil, ErrMissingEntry
	}
	bodyLen := uint32(8) + uint32(len(list.Modules))*8
	return buildParam(moduleInstanceID, ParamIDModulesList, bodyLen, func(b []byte) {
		Endian.PutUint32(b[0:4], list.SubGraphID)
		Endian.PutUint32(b[4:8], uint32(len(list.Modules)))
		off := uint32(8)
		for _, m := range list.Modules {
			Endian.PutUint32(b[off:off+4], m.InstanceID)
			Endian.PutUint32(b[off+4:off+8], m.ModuleID)
			off += 8
		}
	}), nil
}

// PackModuleProperties serializes an array of module-prop-cfg
// entries, each with its own property list.
func PackModuleProperties(moduleInstanceID uint32, mods []*ModulePropCfg) ([]byte, error) {
	bodyLen := uint32(4)
	for _, m := range mods {
		if m == nil {
			return nil, ErrMissingEntry
		}
		bodyLen += 8 + measurePropList(m.Properties)
	}
	return buildParam(moduleInstanceID, ParamIDModuleProp, bodyLen, func(b []byte) {
		Endian.PutUint32(b[0:4], uint32(len(mods)))
		off := uint32(4)
		for _, m := range mods {
			Endian.PutUint32(b[off:off+4], m.InstanceID)
			Endian.PutUint32(b[off+4:off+8], uint32(len(m.Properties)))
			off += 8
			off += writePropList(b[off:], m.Properties)
		}
	}), nil
}

// PackModuleConnections serializes an array of fixed-size connection
// records.
func PackModuleConnections(moduleInstanceID uint32, conns []*ModuleConnection) ([]byte, error) {
	for _, c := range conns {
		if c == nil {
			return nil, ErrMissingEntry
		}
	}
	bodyLen := uint32(4) + uint32(len(conns))*moduleConnectionSize
	return buildParam(moduleInstanceID, ParamIDModuleConn, bodyLen, func(b []byte) {
		Endian.PutUint32(b[0:4], uint32(len(conns)))
		off := uint32(4)
		for _, c := range conns {
			Endian.PutUint32(b[off:off+4], c.SrcInstanceID)
			Endian.PutUint32(b[off+4:off+8], c.SrcPortID)
			Endian.PutUint32(b[off+8:off+12], c.DstInstanceID)
			Endian.PutUint32(b[off+12:off+16], c.DstPortID)
			off += moduleConnectionSize
		}
	}), nil
}

// PackIMCLPeerInfo serializes an array of fixed-size IMCL peer
// records.
func PackIMCLPeerInfo(moduleInstanceID uint32, peers []*IMCLPeerInfo) ([]byte, error) {
	for _, p := range peers {
		if p == nil {
			return nil, ErrMissingEntry
		}
	}
	bodyLen := uint32(4) + uint32(len(peers))*imclPeerInfoSize
	return buildParam(moduleInstanceID, ParamIDIMCLPeerDomainInfo, bodyLen, func(b []byte) {
		Endian.PutUint32(b[0:4], uint32(len(peers)))
		off := uint32(4)
		for _, p := range peers {
			Endian.PutUint32(b[off:off+4], p.ModuleInstanceID)
			Endian.PutUint32(b[off+4:off+8], p.PeerModuleInstanceID)
			Endian.PutUint32(b[off+8:off+12], p.PeerDomainID)
			off += imclPeerInfoSize
		}
	}), nil
}

// PackModuleCtrlLinkCfg serializes an array of link-cfg entries, each
// with its own property list.
func PackModuleCtrlLinkCfg(moduleInstanceID uint32, links []*ModuleCtrlLinkCfg) ([]byte, error) {
	bodyLen := uint32(4)
	for _, l := range links {
		if l == nil {
			return nil, ErrMissingEntry
		}
		bodyLen += 8 + measurePropList(l.Properties)
	}
	return buildParam(moduleInstanceID, ParamIDModuleCtrlLinkCfg, bodyLen, func(b []byte) {
		Endian.PutUint32(b[0:4], uint32(len(links)))
		off := uint32(4)
		for _, l := range links {
			Endian.PutUint32(b[off:off+4], l.LinkID)
			Endian.PutUint32(b[off+4:off+8], uint32(len(l.Properties)))
			off += 8
			off += writePropList(b[off:], l.Properties)
		}
	}), nil
}

// PackParamData concatenates an array of already-formed param-data
// blobs (each including its own ParamHeader), individually 8-byte
// aligned in the destination. Unlike every other kind this carries no
// wrapping top-level param id -- the caller places it directly as the
// command payload or appends it after another section.
func PackParamData(blobs [][]byte) ([]byte, error) {
	var total uint32
	for _, blob := range blobs {
		if blob == nil {
			return nil, ErrMissingEntry
		}
		total += Align8(uint32(len(blob)))
	}
	buf := make([]byte, total)
	var off uint32
	for _, blob := range blobs {
		copy(buf[off:], blob)
		off += Align8(uint32(len(blob)))
	}
	return buf, nil
}

// CloseExtra carries the two extra sections GRAPH_CLOSE appends to
// the generic graph-mgmt sub-graph list: connections and control
// links, laid out with the same helpers PackModuleConnections and
// PackModuleCtrlLinkCfg use internally so the byte layout matches a
// standalone send of either kind.
type CloseExtra struct {
	Connections []*ModuleConnection
	CtrlLinks   []*ModuleCtrlLinkCfg
}

// PackSubGraphList serializes the flat graph-mgmt sub-graph-list
// payload used by PREPARE/START/STOP/FLUSH/SUSPEND. When close is
// non-nil (GRAPH_CLOSE), it appends a connections section and a
// control-links section after the sub-graph id list, reusing the
// exact section layout the original shares between the two payload
// kinds instead of duplicating the section-count logic.
func PackSubGraphList(moduleInstanceID uint32, subGraphIDs []uint32, close *CloseExtra) ([]byte, error) {
	bodyLen := uint32(4) + uint32(len(subGraphIDs))*4

	var connSection, ctrlSection []byte
	if close != nil {
		for _, c := range close.Connections {
			if c == nil {
				return nil, ErrMissingEntry
			}
		}
		for _, l := range close.CtrlLinks {
			if l == nil {
				return nil, ErrMissingEntry
			}
		}
		connSection = make([]byte, 4+len(close.Connections)*moduleConnectionSize)
		Endian.PutUint32(connSection[0:4], uint32(len(close.Connections)))
		off := uint32(4)
		for _, c := range close.Connections {
			Endian.PutUint32(connSection[off:off+4], c.SrcInstanceID)
			Endian.PutUint32(connSection[off+4:off+8], c.SrcPortID)
			Endian.PutUint32(connSection[off+8:off+12], c.DstInstanceID)
			Endian.PutUint32(connSection[off+12:off+16], c.DstPortID)
			off += moduleConnectionSize
		}

		ctrlBodyLen := uint32(4)
		for _, l := range close.CtrlLinks {
			ctrlBodyLen += 8 + measurePropList(l.Properties)
		}
		ctrlSection = make([]byte, ctrlBodyLen)
		Endian.PutUint32(ctrlSection[0:4], uint32(len(close.CtrlLinks)))
		off = 4
		for _, l := range close.CtrlLinks {
			Endian.PutUint32(ctrlSection[off:off+4], l.LinkID)
			Endian.PutUint32(ctrlSection[off+4:off+8], uint32(len(l.Properties)))
			off += 8
			off += writePropList(ctrlSection[off:], l.Properties)
		}

		bodyLen += uint32(len(connSection)) + uint32(len(ctrlSection))
	}

	return buildParam(moduleInstanceID, ParamIDSubGraphList, bodyLen, func(b []byte) {
		Endian.PutUint32(b[0:4], uint32(len(subGraphIDs)))
		off := uint32(4)
		for _, id := range subGraphIDs {
			Endian.PutUint32(b[off:off+4], id)
			off += 4
		}
		if connSection != nil {
			off += uint32(copy(b[off:], connSection))
			off += uint32(copy(b[off:], ctrlSection))
		}
	}), nil
}

// PackPathDelayGet serializes a single path-delay get/response
// payload.
func PackPathDelayGet(moduleInstanceID uint32, path PathDelayRecord) ([]byte, error) {
	return buildParam(moduleInstanceID, ParamIDOffloadGraphPathDelay, pathDelayRecordSize, func(b []byte) {
		Endian.PutUint32(b[0:4], path.PathID)
		Endian.PutUint32(b[4:8], path.DelayUs)
	}), nil
}

// UnpackPathDelayGet reads back a path-delay param block, for
// decoding a satellite response.
func UnpackPathDelayGet(buf []byte) (PathDelayRecord, error) {
	if len(buf) < int(ParamHeaderSize+pathDelayRecordSize) {
		return PathDelayRecord{}, errors.New("wire: path-delay response too short")
	}
	body := buf[ParamHeaderSize:]
	return PathDelayRecord{
		PathID:  Endian.Uint32(body[0:4]),
		DelayUs: Endian.Uint32(body[4:8]),
	}, nil
}
