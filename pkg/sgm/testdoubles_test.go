/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm_test

import (
	"sync"

	"github.com/audiograph/sgm/pkg/sgm"
)

// fakeRouter is a minimal in-process sgm.PacketRouter double: AsyncSend
// records every packet instead of delivering it anywhere, and
// RegisterContainer captures the callback so a test can simulate an
// inbound response by invoking it directly.
type fakeRouter struct {
	mu       sync.Mutex
	sent     []*sgm.Packet
	freed    []*sgm.Packet
	callback sgm.PacketCallback

	allocErr error
	sendErr  error
}

func (f *fakeRouter) RegisterContainer(containerID uint32, cb sgm.PacketCallback, opaque interface{}) error {
	f.callback = cb
	return nil
}

func (f *fakeRouter) DeregisterContainer(containerID uint32) error {
	f.callback = nil
	return nil
}

func (f *fakeRouter) AllocPacket(srcDomain, dstDomain, srcPort, dstPort, token uint32, opcode sgm.Opcode, payloadSize uint32, clientData interface{}) (*sgm.Packet, error) {
	if f.allocErr != nil {
		return nil, f.allocErr
	}
	return &sgm.Packet{
		SrcDomain:  srcDomain,
		DstDomain:  dstDomain,
		SrcPort:    srcPort,
		DstPort:    dstPort,
		Token:      token,
		Opcode:     opcode,
		Payload:    make([]byte, payloadSize),
		ClientData: clientData,
	}, nil
}

func (f *fakeRouter) AsyncSend(pkt *sgm.Packet) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, pkt)
	f.mu.Unlock()
	return nil
}

func (f *fakeRouter) AllocAndSend(srcDomain, dstDomain, srcPort, dstPort, token uint32, opcode sgm.Opcode, payload []byte, clientData interface{}) error {
	pkt, err := f.AllocPacket(srcDomain, dstDomain, srcPort, dstPort, token, opcode, uint32(len(payload)), clientData)
	if err != nil {
		return err
	}
	copy(pkt.Payload, payload)
	return f.AsyncSend(pkt)
}

func (f *fakeRouter) EndCommand(pkt *sgm.Packet, status sgm.Status) {}

func (f *fakeRouter) FreePacket(pkt *sgm.Packet) {
	f.mu.Lock()
	f.freed = append(f.freed, pkt)
	f.mu.Unlock()
}

func (f *fakeRouter) lastSent() *sgm.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeRouter) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

var _ sgm.PacketRouter = (*fakeRouter)(nil)

// recordingHandlers is a ResultHandlerTable that records every call it
// receives, for assertions on which method the router/sweeper chose.
type recordingHandlers struct {
	mu    sync.Mutex
	calls []string
	infos []*sgm.RspInfo
}

func (h *recordingHandlers) record(method string, info *sgm.RspInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, method)
	h.infos = append(h.infos, info)
}

func (h *recordingHandlers) called() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	copy(out, h.calls)
	return out
}

func (h *recordingHandlers) lastInfo() *sgm.RspInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.infos) == 0 {
		return nil
	}
	return h.infos[len(h.infos)-1]
}

func (h *recordingHandlers) GraphOpenRsp(info *sgm.RspInfo)      { h.record("GraphOpenRsp", info) }
func (h *recordingHandlers) GraphCloseRsp(info *sgm.RspInfo)     { h.record("GraphCloseRsp", info) }
func (h *recordingHandlers) GraphPrepareRsp(info *sgm.RspInfo)   { h.record("GraphPrepareRsp", info) }
func (h *recordingHandlers) GraphStartStopSuspendFlushRsp(info *sgm.RspInfo) {
	h.record("GraphStartStopSuspendFlushRsp", info)
}
func (h *recordingHandlers) SetGetCfgRsp(info *sgm.RspInfo)       { h.record("SetGetCfgRsp", info) }
func (h *recordingHandlers) SetGetCfgPackedRsp(info *sgm.RspInfo) { h.record("SetGetCfgPackedRsp", info) }
func (h *recordingHandlers) SetPersistentRsp(info *sgm.RspInfo)   { h.record("SetPersistentRsp", info) }
func (h *recordingHandlers) SetPersistentPackedRsp(info *sgm.RspInfo) {
	h.record("SetPersistentPackedRsp", info)
}
func (h *recordingHandlers) EventRegRsp(info *sgm.RspInfo) { h.record("EventRegRsp", info) }

var _ sgm.ResultHandlerTable = &recordingHandlers{}

// stubCacheOps records flush/invalidate calls and can be told to fail.
type stubCacheOps struct {
	mu               sync.Mutex
	flushed          int
	invalidated      int
	flushErr         error
	invalidateErr    error
}

func (c *stubCacheOps) Flush(addr uint64, length uint32) error {
	c.mu.Lock()
	c.flushed++
	c.mu.Unlock()
	return c.flushErr
}

func (c *stubCacheOps) Invalidate(addr uint64, length uint32) error {
	c.mu.Lock()
	c.invalidated++
	c.mu.Unlock()
	return c.invalidateErr
}

var _ sgm.CacheOps = &stubCacheOps{}

// stubHandleTranslator returns a fixed handle for every region, or
// sgm.InvalidHandle if failNext is set.
type stubHandleTranslator struct {
	nextHandle uint32
	failNext   bool
	translateErr error
}

func (t *stubHandleTranslator) Translate(satelliteDomainID uint32, region *sgm.ShmRegion) (uint32, error) {
	if t.translateErr != nil {
		return 0, t.translateErr
	}
	if t.failNext {
		return sgm.InvalidHandle, nil
	}
	if t.nextHandle == 0 {
		return 0xAB00, nil
	}
	return t.nextHandle, nil
}

var _ sgm.HandleTranslator = &stubHandleTranslator{}

// stubDataPath records which data-path callback fired.
type stubDataPath struct {
	mu    sync.Mutex
	calls []string
}

func (d *stubDataPath) record(method string) {
	d.mu.Lock()
	d.calls = append(d.calls, method)
	d.mu.Unlock()
}

func (d *stubDataPath) called() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *stubDataPath) MediaFormat(readPortIndex int, payload []byte) { d.record("MediaFormat") }
func (d *stubDataPath) OperatingFrameSize(payload []byte)             { d.record("OperatingFrameSize") }
func (d *stubDataPath) MetadataCloneMD(payload []byte)                { d.record("MetadataCloneMD") }
func (d *stubDataPath) MetadataTracking(payload []byte)               { d.record("MetadataTracking") }

var _ sgm.DataPathHandlers = &stubDataPath{}

// stubPathDelayUpdater records UpdatePathDelay calls.
type stubPathDelayUpdater struct {
	mu    sync.Mutex
	calls []struct {
		MasterPathID uint32
		PrevDelayUs  uint32
		NewDelayUs   uint32
	}
}

func (u *stubPathDelayUpdater) UpdatePathDelay(masterPathID uint32, prevDelayUs, newDelayUs uint32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, struct {
		MasterPathID uint32
		PrevDelayUs  uint32
		NewDelayUs   uint32
	}{masterPathID, prevDelayUs, newDelayUs})
}

func (u *stubPathDelayUpdater) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

var _ sgm.UpdatePathDelay = &stubPathDelayUpdater{}

// stubEventSender records register/deregister container-delay event
// requests instead of sending a real GPR packet.
type stubEventSender struct {
	mu    sync.Mutex
	calls []struct {
		SatelliteContainerID uint32
		Register             bool
	}
	sendErr error
}

func (s *stubEventSender) SendRegisterContainerDelayEvent(satelliteContainerID uint32, register bool) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, struct {
		SatelliteContainerID uint32
		Register             bool
	}{satelliteContainerID, register})
	return nil
}

func (s *stubEventSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

var _ sgm.EventSender = &stubEventSender{}
