/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package wire implements the binary encoding rules the satellite APM
// wire schema imposes on every payload this driver sends or receives
// (see the external-interfaces section of the driver's own
// specification: param headers, command headers, property-list
// layout, and 8-byte padding). None of these layouts are invented
// here -- they are a given binary contract between master and
// satellite, and this package's only job is measuring and writing
// them exactly.
package wire

import (
	"encoding/binary"
)

// Endian is the byte order used for every field in this package. The
// wire schema is native-endian because the two endpoints share the
// same ISA; there is deliberately no byte-swap layer.
var Endian = binary.LittleEndian

// Align8 rounds n up to the next multiple of 8, matching the
// mandatory 8-byte padding every top-level emitted block carries.
func Align8(n uint32) uint32 {
	return (n + 7) &^ 7
}

// Pad8 returns the number of padding bytes needed after n bytes to
// reach an 8-byte boundary.
func Pad8(n uint32) uint32 {
	return Align8(n) - n
}

// ParamHeader is the apm_module_param_data_t header that precedes
// every top-level param block.
type ParamHeader struct {
	ModuleInstanceID uint32
	ParamID          uint32
	ParamSize        uint32
	ErrorCode        uint32
}

const ParamHeaderSize = 16

func (h ParamHeader) Put(b []byte) {
	Endian.PutUint32(b[0:4], h.ModuleInstanceID)
	Endian.PutUint32(b[4:8], h.ParamID)
	Endian.PutUint32(b[8:12], h.ParamSize)
	Endian.PutUint32(b[12:16], h.ErrorCode)
}

func GetParamHeader(b []byte) ParamHeader {
	return ParamHeader{
		ModuleInstanceID: Endian.Uint32(b[0:4]),
		ParamID:          Endian.Uint32(b[4:8]),
		ParamSize:        Endian.Uint32(b[8:12]),
		ErrorCode:        Endian.Uint32(b[12:16]),
	}
}

// CommandHeader is the APM command header carried ahead of every
// dispatched payload: { payload_address_lsw, payload_address_msw,
// mem_map_handle, payload_size }. In-band sends leave the first three
// fields zero; OOB sends fill them from the owning ShmRegion.
type CommandHeader struct {
	PayloadAddressLSW uint32
	PayloadAddressMSW uint32
	MemMapHandle      uint32
	PayloadSize       uint32
}

const CommandHeaderSize = 16

func (h CommandHeader) Put(b []byte) {
	Endian.PutUint32(b[0:4], h.PayloadAddressLSW)
	Endian.PutUint32(b[4:8], h.PayloadAddressMSW)
	Endian.PutUint32(b[8:12], h.MemMapHandle)
	Endian.PutUint32(b[12:16], h.PayloadSize)
}

// InbandCommandHeader builds the header for an in-band send: address
// and handle fields are zero, size is the total payload length.
func InbandCommandHeader(payloadSize uint32) CommandHeader {
	return CommandHeader{PayloadSize: payloadSize}
}

// OOBCommandHeader builds the header for an out-of-band send: the
// address LSW is the offset within the region, the handle is the
// satellite-side memory-map handle, MSW is always zero (regions never
// exceed 32 bits of offset in this design).
func OOBCommandHeader(offset, handle, payloadSize uint32) CommandHeader {
	return CommandHeader{
		PayloadAddressLSW: offset,
		MemMapHandle:      handle,
		PayloadSize:       payloadSize,
	}
}

// Property is one { prop_id, prop_size, prop_bytes[prop_size] } tuple
// from a sub-graph or module-property property list.
type Property struct {
	ID    uint32
	Bytes []byte
}

const propHeaderSize = 8

// Size returns the property's on-wire size including its 8-byte
// header (prop_id, prop_size), unpadded -- property-list entries are
// packed back to back without individual padding; only the
// containing top-level block is padded to 8 bytes.
func (p Property) Size() uint32 {
	return propHeaderSize + uint32(len(p.Bytes))
}

func (p Property) Put(b []byte) uint32 {
	Endian.PutUint32(b[0:4], p.ID)
	Endian.PutUint32(b[4:8], uint32(len(p.Bytes)))
	n := copy(b[8:], p.Bytes)
	return propHeaderSize + uint32(n)
}

func GetProperty(b []byte) (Property, uint32) {
	id := Endian.Uint32(b[0:4])
	size := Endian.Uint32(b[4:8])
	body := make([]byte, size)
	copy(body, b[8:8+size])
	return Property{ID: id, Bytes: body}, propHeaderSize + size
}

// PropDomainPropID is the property id of the container PROC_DOMAIN
// property, carrying a single u32 proc_domain value. The splitter
// strips this property from the payload forwarded to the satellite
// after learning the satellite domain id from it.
const PropDomainPropID uint32 = 0x0A01

// ProcDomainOf extracts the proc_domain u32 from a PROC_DOMAIN
// property's bytes. ok is false if the property is malformed.
func ProcDomainOf(p Property) (domain uint32, ok bool) {
	if len(p.Bytes) < 4 {
		return 0, false
	}
	return Endian.Uint32(p.Bytes[0:4]), true
}

// ProcDomainProperty builds a PROC_DOMAIN property carrying domain.
func ProcDomainProperty(domain uint32) Property {
	b := make([]byte, 4)
	Endian.PutUint32(b, domain)
	return Property{ID: PropDomainPropID, Bytes: b}
}
