/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

// Opcode identifies the APM command or response a packet carries.
// Values are assigned here rather than imported from a generated
// header because the APM wire schema is an external contract (see
// §6.2); a production build would pull these from the framework's own
// opcode header instead.
type Opcode uint32

const (
	OpcodeGraphOpen Opcode = 0x0100 + iota
	OpcodeGraphPrepare
	OpcodeGraphStart
	OpcodeGraphSuspend
	OpcodeGraphStop
	OpcodeGraphFlush
	OpcodeGraphClose
	OpcodeSetCfg
	OpcodeGetCfg
	OpcodeSetCfgPacked
	OpcodeGetCfgPacked
	OpcodeSetPersistentCfg
	OpcodeGetPersistentCfg
	OpcodeSetPersistentCfgPacked
	OpcodeGetPersistentCfgPacked
	OpcodeRegisterModuleEvents
	OpcodeDeregisterModuleEvents
	OpcodeGetPathDelay
)

const (
	// OpcodeBasicRspResult is GPR_IBASIC_RSP_RESULT: a generic
	// response envelope carrying an inner rsp_opcode equal to the
	// original APM opcode that was sent.
	OpcodeBasicRspResult Opcode = 0x02FF
	// OpcodeCmdRspGetCfg is APM_CMD_RSP_GET_CFG, always routed
	// through the OOB copy-back path regardless of handler table.
	OpcodeCmdRspGetCfg Opcode = 0x02FE
)

const (
	// OpcodeEventModuleToClient is APM_EVENT_MODULE_TO_CLIENT.
	OpcodeEventModuleToClient Opcode = 0x0300 + iota
	// OpcodeEventRdShMemEPMediaFormat is
	// OFFLOAD_EVENT_ID_RD_SH_MEM_EP_MEDIA_FORMAT.
	OpcodeEventRdShMemEPMediaFormat
	// OpcodeEventShMemEPOperatingFrameSize is
	// OFFLOAD_EVENT_ID_SH_MEM_EP_OPERATING_FRAME_SIZE.
	OpcodeEventShMemEPOperatingFrameSize
	// OpcodeEventMetadataCloneMD is
	// EVENT_ID_MODULE_CMN_METADATA_CLONE_MD.
	OpcodeEventMetadataCloneMD
	// OpcodeEventMetadataTracking is
	// EVENT_ID_MODULE_CMN_METADATA_TRACKING_EVENT.
	OpcodeEventMetadataTracking
	// OpcodeEventContainerDelay carries
	// {prev_delay_us, new_delay_us, path_id_satellite}.
	OpcodeEventContainerDelay
)

// OffloadEventID distinguishes driver-internal events delivered with
// a zero correlation token (APM_EVENT_MODULE_TO_CLIENT's token==0
// branch).
type OffloadEventID uint32

const (
	OffloadEventIDUnknown OffloadEventID = iota
	OffloadEventIDGetContainerDelay
)

// Status is the result code carried back to a caller in RspInfo.
type Status uint32

const (
	StatusOK Status = iota
	StatusBadParam
	StatusMemExhausted
	StatusBusy
	StatusNotMapped
	StatusTransportFailed
	StatusUnsupported
	StatusUnexpected
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadParam:
		return "BadParam"
	case StatusMemExhausted:
		return "MemExhausted"
	case StatusBusy:
		return "Busy"
	case StatusNotMapped:
		return "NotMapped"
	case StatusTransportFailed:
		return "TransportFailed"
	case StatusUnsupported:
		return "Unsupported"
	case StatusUnexpected:
		return "Unexpected"
	default:
		return "Unknown"
	}
}

// StatusFromKind maps an internal error Kind onto the wire-level
// Status reported to callers via RspInfo.
func StatusFromKind(k Kind) Status {
	switch k {
	case BadParam:
		return StatusBadParam
	case MemExhausted:
		return StatusMemExhausted
	case Busy:
		return StatusBusy
	case NotMapped:
		return StatusNotMapped
	case TransportFailed:
		return StatusTransportFailed
	case Unsupported:
		return StatusUnsupported
	default:
		return StatusUnexpected
	}
}

// isCloseExempt reports whether opcode is exempt from the one
// active-command-per-opcode-class invariant. GRAPH_CLOSE is the only
// command admissible while another command is still outstanding.
func isCloseExempt(op Opcode) bool {
	return op == OpcodeGraphClose
}
