/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

import (
	"github.com/audiograph/sgm/pkg/log"
	"github.com/audiograph/sgm/pkg/wire"
)

// APMModuleInstanceID is the module instance id of the APM itself,
// used to distinguish an APM-addressed response (the caller supplied
// structured parameter-data descriptors) from a module-addressed one
// (the caller supplied a single flat buffer) for SET/GET_CFG
// responses.
const APMModuleInstanceID uint32 = 0x00000001

// ParamDataDescriptor describes one destination slice for a
// structured, APM-destined SET/GET_CFG response: at most
// ParamSize+header bytes are copied from the region to Dest, which
// must already be sized to receive them.
type ParamDataDescriptor struct {
	ParamSize uint32
	Dest      []byte
}

// SetGetCfgExtension is the CommandHandle.Extension payload used by
// SET/GET_CFG and persistent-cfg commands: it carries either the
// structured descriptor array (APM-destined) or the original client
// request (module-destined packed, whose flat buffer is
// CommandHandle.RspBuf), mirroring the two response post-processing
// modes in the driver's design.
type SetGetCfgExtension struct {
	Descriptors []ParamDataDescriptor

	// OriginalClient mirrors the cached client request so a
	// synthesized APM_CMD_RSP_GET_CFG can be sent back with
	// dst<->src and token preserved.
	OriginalClient *Packet
}

// basicRspResultPayload is the body of a GPR_IBASIC_RSP_RESULT
// packet: the original APM opcode this answers, plus the status.
type basicRspResultPayload struct {
	RspOpcode Opcode
	Status    Status
}

// PathDelayGetExtension is the CommandHandle.Extension payload for a
// GET_PATH_DELAY command: the master path id the caller asked about
// and the satellite container id whose container-delay subscription
// this path feeds, cached so the response handler can update the
// path-delay registry once the satellite-side path id comes back.
type PathDelayGetExtension struct {
	MasterPathID         uint32
	SatelliteContainerID uint32
}

func parseBasicRspResult(payload []byte) basicRspResultPayload {
	if len(payload) < 8 {
		return basicRspResultPayload{Status: StatusUnexpected}
	}
	return basicRspResultPayload{
		RspOpcode: Opcode(wire.Endian.Uint32(payload[0:4])),
		Status:    Status(wire.Endian.Uint32(payload[4:8])),
	}
}

// ResponseRouter implements component G: pop from the response
// queue, demux by opcode + source port + token, invoke the
// caller-registered result-handler table, and drive the OOB
// copy-back path.
type ResponseRouter struct {
	logger    log.Logger
	cmds      *CommandHandleRegistry
	cache     CacheOps
	router    PacketRouter
	primary   ResultHandlerTable
	pathDelay *PathDelayRegistry
}

// NewResponseRouter wires a ResponseRouter to its collaborators.
// pathDelay links the GET_PATH_DELAY response path (see
// handlePathDelayResponse) into component I.
func NewResponseRouter(logger log.Logger, cmds *CommandHandleRegistry, cache CacheOps, router PacketRouter, primary ResultHandlerTable, pathDelay *PathDelayRegistry) *ResponseRouter {
	return &ResponseRouter{logger: logger, cmds: cmds, cache: cache, router: router, primary: primary, pathDelay: pathDelay}
}

// Handle processes one response-queue message.
func (r *ResponseRouter) Handle(pkt *Packet) {
	switch pkt.Opcode {
	case OpcodeBasicRspResult:
		r.handleBasicRspResult(pkt)
	case OpcodeCmdRspGetCfg:
		r.handleGetCfgResponse(pkt)
	default:
		r.router.EndCommand(pkt, StatusUnsupported)
		r.router.FreePacket(pkt)
	}
}

func (r *ResponseRouter) handleBasicRspResult(pkt *Packet) {
	inner := parseBasicRspResult(pkt.Payload)

	h, ok := r.cmds.LookupByToken(pkt.Token)
	if !ok {
		r.logger.Debugw("response for unknown token, dropping", "token", pkt.Token)
		r.router.FreePacket(pkt)
		return
	}

	info := &RspInfo{
		Status: inner.Status,
		Opcode: h.Opcode,
		Token:  pkt.Token,
		CmdMsg: h.CachedMsg,
	}

	r.dispatch(h, pkt, info)
	r.router.FreePacket(pkt)
}

// dispatch routes to the correct primary-table method by opcode, and
// destroys the handle unless the opcode is REGISTER_MODULE_EVENTS or
// DEREGISTER_MODULE_EVENTS with a zero token (the driver-internal
// registration whose handle outlives a single response), or the
// opcode is unsupported (ended with StatusUnsupported instead).
func (r *ResponseRouter) dispatch(h *CommandHandle, pkt *Packet, info *RspInfo) {
	skipDestroy := false

	switch h.Opcode {
	case OpcodeGraphOpen:
		r.primary.GraphOpenRsp(info)
	case OpcodeGraphClose:
		r.primary.GraphCloseRsp(info)
	case OpcodeGraphPrepare:
		r.primary.GraphPrepareRsp(info)
	case OpcodeGraphStart, OpcodeGraphStop, OpcodeGraphSuspend, OpcodeGraphFlush:
		r.primary.GraphStartStopSuspendFlushRsp(info)
	case OpcodeSetCfg, OpcodeGetCfg:
		if pkt.SrcPort == APMModuleInstanceID {
			r.primary.SetGetCfgRsp(info)
		} else {
			r.primary.SetGetCfgPackedRsp(info)
		}
	case OpcodeSetCfgPacked, OpcodeGetCfgPacked:
		r.primary.SetGetCfgPackedRsp(info)
	case OpcodeGetPathDelay:
		// A basic-result for GET_PATH_DELAY only ever reports
		// failure -- a successful GET always completes through
		// APM_CMD_RSP_GET_CFG's copy-back path (handleGetCfgResponse),
		// which destroys the handle itself and never reaches here.
		r.primary.SetGetCfgRsp(info)
	case OpcodeSetPersistentCfg, OpcodeGetPersistentCfg:
		if pkt.SrcPort == APMModuleInstanceID {
			r.primary.SetPersistentRsp(info)
		} else {
			r.primary.SetPersistentPackedRsp(info)
		}
	case OpcodeSetPersistentCfgPacked, OpcodeGetPersistentCfgPacked:
		r.primary.SetPersistentPackedRsp(info)
	case OpcodeRegisterModuleEvents, OpcodeDeregisterModuleEvents:
		r.primary.EventRegRsp(info)
		if pkt.Token == 0 {
			skipDestroy = true
		}
	default:
		r.router.EndCommand(pkt, StatusUnsupported)
		skipDestroy = true
	}

	if !skipDestroy {
		r.cmds.Destroy(h.Token)
	}
}

// handleGetCfgResponse always runs the OOB copy-back path (when the
// command was dispatched OOB) before invoking the set/get result
// handler, regardless of which opcode table entry originally sent the
// request.
func (r *ResponseRouter) handleGetCfgResponse(pkt *Packet) {
	h, ok := r.cmds.LookupByToken(pkt.Token)
	if !ok {
		r.logger.Debugw("GET_CFG response for unknown token, dropping", "token", pkt.Token)
		r.router.FreePacket(pkt)
		return
	}

	status := StatusOK
	if err := r.copyBack(h, pkt); err != nil {
		r.logger.Errorw("GET_CFG copy-back failed", "token", pkt.Token, "error", err)
		status = StatusFromKind(KindOf(err))
	}

	if h.Opcode == OpcodeGetPathDelay {
		r.handlePathDelayResponse(h, pkt, status)
	} else {
		info := &RspInfo{Status: status, Opcode: h.Opcode, Token: pkt.Token, CmdMsg: h.CachedMsg}
		r.primary.SetGetCfgRsp(info)
	}
	r.cmds.Destroy(h.Token)
	r.router.FreePacket(pkt)
}

// handlePathDelayResponse implements the data half of scenario 4: once
// a GET_PATH_DELAY response has copied back successfully, decode the
// satellite-side path id and feed PathDelayRegistry so the master/
// satellite path mapping exists and the satellite container's
// container-delay event subscription is refcounted and (re-)sent.
func (r *ResponseRouter) handlePathDelayResponse(h *CommandHandle, pkt *Packet, status Status) {
	if status != StatusOK || r.pathDelay == nil {
		return
	}
	ext, ok := h.Extension.(*PathDelayGetExtension)
	if !ok || ext == nil {
		r.logger.Errorw("path-delay response missing extension, dropping", "token", h.Token)
		return
	}

	var raw []byte
	switch {
	case h.IsInband:
		raw = pkt.Payload
	case h.Region != nil:
		raw = h.Region.Bytes()
	}
	record, err := wire.UnpackPathDelayGet(raw)
	if err != nil {
		r.logger.Errorw("failed to unpack path-delay response", "token", h.Token, "error", err)
		return
	}

	r.pathDelay.UpdatePathMap(ext.MasterPathID, record.PathID, true)
	r.pathDelay.AddContainerForPath(ext.SatelliteContainerID, ext.MasterPathID)
	if err := r.pathDelay.Register(true); err != nil {
		r.logger.Errorw("failed to register container-delay event after path-delay get", "error", err)
	}
}

// copyBack implements the two set/get response post-processing
// modes. APM-destined structured: invalidate the region, then copy
// each descriptor's bytes from the region into the caller's buffer.
// Module-destined packed: invalidate, copy the full region up to
// buffer capacity into the caller's buffer, and forward a
// synthesized APM_CMD_RSP_GET_CFG to the original client; no cache
// flush is issued for the caller's buffer. The in-band
// variant bypasses the region and copies straight from the packet
// payload.
func (r *ResponseRouter) copyBack(h *CommandHandle, pkt *Packet) error {
	ext, _ := h.Extension.(*SetGetCfgExtension)

	if h.IsInband {
		if ext != nil && ext.OriginalClient != nil {
			return r.forwardToClient(ext.OriginalClient, pkt.Payload)
		}
		if ext != nil {
			return copyDescriptors(ext.Descriptors, pkt.Payload)
		}
		return nil
	}

	if h.Region == nil {
		return errNotMapped(nil, "copy-back: OOB command has no region")
	}
	if err := r.cache.Invalidate(h.Region.LocalVA, h.Region.Length); err != nil {
		return errPanic(err, "cache invalidate failed")
	}
	src := h.Region.Bytes()

	if ext != nil && ext.OriginalClient != nil {
		n := len(src)
		if n > len(h.RspBuf) {
			n = len(h.RspBuf)
		}
		// h.RspBuf is caller-owned host memory, not a mapped region
		// with its own cache domain -- it was never written to by the
		// satellite, so nothing downstream needs a flush here. The
		// region itself was already invalidated above, before src was
		// read from it.
		copy(h.RspBuf, src[:n])
		return r.forwardToClient(ext.OriginalClient, h.RspBuf[:n])
	}

	if ext != nil {
		return copyDescriptors(ext.Descriptors, src)
	}
	return nil
}

func copyDescriptors(descriptors []ParamDataDescriptor, src []byte) error {
	off := uint32(0)
	for i := range descriptors {
		d := &descriptors[i]
		want := wire.ParamHeaderSize + d.ParamSize
		if uint64(off)+uint64(want) > uint64(len(src)) {
			return errBadParam(nil, "copy-back: descriptor exceeds response region")
		}
		n := copy(d.Dest, src[off:off+want])
		_ = n
		off += wire.Align8(want)
	}
	return nil
}

func (r *ResponseRouter) forwardToClient(original *Packet, payload []byte) error {
	out, err := r.router.AllocPacket(original.DstDomain, original.SrcDomain, original.DstPort, original.SrcPort, original.Token, OpcodeCmdRspGetCfg, uint32(len(payload)), nil)
	if err != nil {
		return errTransportFailed(err, "failed to allocate forwarded GET_CFG response")
	}
	copy(out.Payload, payload)
	if err := r.router.AsyncSend(out); err != nil {
		return errTransportFailed(err, "failed to forward GET_CFG response")
	}
	return nil
}
