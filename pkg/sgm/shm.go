/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

import (
	"sync"
)

// InvalidHandle is the APM_OFFLOAD_INVALID_VAL sentinel: a remote
// handle translation that did not resolve to a valid mapping.
const InvalidHandle uint32 = 0xFFFFFFFF

// ShmRegion is a shared-memory slice mapped into both the master and
// the satellite address spaces. It is exclusively owned by the
// CommandHandle that allocated it, and is freed only when that handle
// is destroyed or bailed out.
type ShmRegion struct {
	LocalVA         uint64
	Length          uint32
	SatelliteHandle uint32
	Offset          uint32

	data []byte
}

// Remote returns the {satellite_handle, offset} pair the wire schema
// expects in the APM command header for an OOB payload.
func (r *ShmRegion) Remote() (handle uint32, offset uint32) {
	return r.SatelliteHandle, r.Offset
}

// Bytes exposes the backing storage for the packer to write into and
// for response post-processing to read back from. Length bounds every
// access; callers must never slice past it.
func (r *ShmRegion) Bytes() []byte {
	return r.data[:r.Length]
}

// CacheOps is the framework collaborator that performs cache
// flush/invalidate over shared-memory ranges. Both operations are
// resource-bearing: flush after the last master write on OOB send,
// invalidate before the first master read on OOB response. Neither
// may overshoot the allocated length -- callers always pass exactly
// the range they touched.
type CacheOps interface {
	Flush(addr uint64, length uint32) error
	Invalidate(addr uint64, length uint32) error
}

// HandleTranslator resolves a satellite domain id to the remote
// memory-map handle for a freshly allocated region. A production
// container wires this to offload_translate_persistent_handle; tests
// use a stub that returns a fixed handle or InvalidHandle.
type HandleTranslator interface {
	Translate(satelliteDomainID uint32, region *ShmRegion) (handle uint32, err error)
}

// ShmManager allocates and frees shared-memory regions addressable by
// the remote domain, and resolves local VA to the {satellite_handle,
// offset} pair a dispatch needs. A region is single-writer (the
// driver thread) until send, then read-only on the master side until
// the response arrives and the region is freed.
type ShmManager struct {
	mu         sync.Mutex
	translator HandleTranslator
	regions    map[uint64]*ShmRegion
	nextVA     uint64
}

// NewShmManager constructs a manager backed by the given handle
// translator.
func NewShmManager(translator HandleTranslator) *ShmManager {
	return &ShmManager{
		translator: translator,
		regions:    make(map[uint64]*ShmRegion),
		nextVA:     1,
	}
}

// Alloc reserves size bytes addressable by satelliteDomainID. A zero
// size fails with BadParam, a translator error with MemExhausted, and
// a translation to InvalidHandle with NotMapped; a partially built
// CommandHandle that fails here must be bailed out by the caller
// before returning upward.
func (m *ShmManager) Alloc(size uint32, satelliteDomainID uint32) (*ShmRegion, error) {
	if size == 0 {
		return nil, errBadParam(nil, "shm alloc: zero-length region requested")
	}
	m.mu.Lock()
	va := m.nextVA
	m.nextVA++
	m.mu.Unlock()

	region := &ShmRegion{
		LocalVA: va,
		Length:  size,
		data:    make([]byte, size),
	}

	handle, err := m.translator.Translate(satelliteDomainID, region)
	if err != nil {
		return nil, errMemExhausted(err, "shm alloc: handle translation failed")
	}
	if handle == InvalidHandle {
		return nil, errNotMapped(nil, "shm alloc: translator returned invalid handle")
	}
	region.SatelliteHandle = handle

	m.mu.Lock()
	m.regions[va] = region
	m.mu.Unlock()
	return region, nil
}

// Free releases a region. Freeing nil or an already-freed region is a
// no-op so CommandHandle.destroy can call it unconditionally.
func (m *ShmManager) Free(region *ShmRegion) {
	if region == nil {
		return
	}
	m.mu.Lock()
	delete(m.regions, region.LocalVA)
	m.mu.Unlock()
}

// VAToRemote resolves a local VA to its {satellite_handle, offset}.
// NotMapped is returned when localVA does not refer to a live region
// tracked by this manager.
func (m *ShmManager) VAToRemote(localVA uint64) (handle uint32, offset uint32, err error) {
	m.mu.Lock()
	region, ok := m.regions[localVA]
	m.mu.Unlock()
	if !ok {
		return 0, 0, errNotMapped(nil, "shm: no region mapped for local VA")
	}
	return region.SatelliteHandle, region.Offset, nil
}
