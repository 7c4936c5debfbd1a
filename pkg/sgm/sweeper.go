/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

import (
	"github.com/audiograph/sgm/pkg/log"
)

// CrashSweeper implements component J: on a service-registry
// down-notification, it walks every in-flight command and calls the
// secondary result-handler table with an Unexpected status so upper
// layers can synthesize failures instead of hanging forever waiting
// for a response that will never arrive.
type CrashSweeper struct {
	logger    log.Logger
	cmds      *CommandHandleRegistry
	secondary ResultHandlerTable
}

// NewCrashSweeper constructs a sweeper bound to the command-handle
// registry and the secondary (error-propagation) result-handler
// table. secondary may be nil; the sweep still destroys every handle.
func NewCrashSweeper(logger log.Logger, cmds *CommandHandleRegistry, secondary ResultHandlerTable) *CrashSweeper {
	return &CrashSweeper{logger: logger, cmds: cmds, secondary: secondary}
}

// dispatch routes a synthesized Unexpected RspInfo to the matching
// secondary-table method, mirroring ResponseRouter.dispatch's opcode
// switch so a swept command is reported through the same channel a
// real response would have used.
func (s *CrashSweeper) dispatch(info *RspInfo) {
	if s.secondary == nil {
		return
	}
	switch info.Opcode {
	case OpcodeGraphOpen:
		s.secondary.GraphOpenRsp(info)
	case OpcodeGraphClose:
		s.secondary.GraphCloseRsp(info)
	case OpcodeGraphPrepare:
		s.secondary.GraphPrepareRsp(info)
	case OpcodeGraphStart, OpcodeGraphStop, OpcodeGraphSuspend, OpcodeGraphFlush:
		s.secondary.GraphStartStopSuspendFlushRsp(info)
	case OpcodeSetCfg, OpcodeGetCfg, OpcodeGetPathDelay:
		s.secondary.SetGetCfgRsp(info)
	case OpcodeSetCfgPacked, OpcodeGetCfgPacked:
		s.secondary.SetGetCfgPackedRsp(info)
	case OpcodeSetPersistentCfg, OpcodeGetPersistentCfg:
		s.secondary.SetPersistentRsp(info)
	case OpcodeSetPersistentCfgPacked, OpcodeGetPersistentCfgPacked:
		s.secondary.SetPersistentPackedRsp(info)
	case OpcodeRegisterModuleEvents, OpcodeDeregisterModuleEvents:
		s.secondary.EventRegRsp(info)
	}
}

// Sweep walks the command-handle list front-to-back, popping the head
// each time rather than iterating the backing slice, so destroying an
// entry never leaves the walk referencing an unlinked node. Every
// waiting handle is visited exactly once; regardless of handler
// outcome, it is always destroyed. Must succeed even if the secondary
// table is unset, and must never call back into the dispatcher.
func (s *CrashSweeper) Sweep() int {
	swept := 0
	for {
		h, ok := s.cmds.PopFront()
		if !ok {
			break
		}
		if !h.WaitForRsp {
			// Only commands waiting for a response are meaningfully
			// "in flight"; anything else already completed.
			continue
		}
		info := &RspInfo{
			Status: StatusUnexpected,
			Opcode: h.Opcode,
			Token:  h.Token,
			CmdMsg: h.CachedMsg,
		}
		s.dispatch(info)
		s.cmds.ReleaseHandle(h)
		swept++
		s.logger.Debugw("crash swept command", "token", h.Token, "opcode", h.Opcode)
	}
	return swept
}
