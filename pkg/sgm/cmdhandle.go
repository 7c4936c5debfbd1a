/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

import (
	"sync/atomic"

	"github.com/audiograph/sgm/pkg/log"
)

// DynamicTokenStart is the offset the original reserves for
// driver-issued ("dynamic") tokens; tokens below it are never issued
// by this driver and, if ever observed on an inbound packet, must be
// treated as externally assigned rather than a bug in our own
// counter.
const DynamicTokenStart uint32 = 0x8000_0000

// CommandHandle is the per-in-flight-command state object. A
// CommandHandle owns its ShmRegion and payload buffer so that
// destroying it is the single place cleanup happens, per the design
// note that bail-out is the only correct cleanup funnel.
type CommandHandle struct {
	Token           uint32
	Opcode          Opcode
	SecondaryOpcode Opcode
	HasSecondary    bool
	IsInband        bool
	WaitForRsp      bool
	IsAPMDestination bool

	// CachedMsg is the incoming message, retained for replay during
	// a crash sweep.
	CachedMsg interface{}

	Region  *ShmRegion
	Payload []byte

	// RspBuf/RspCap describe an optional caller-supplied response
	// buffer for module-destined packed GET_CFG responses.
	RspBuf []byte
	RspCap int

	// Extension is an optional opaque pointer to opcode-specific
	// extra state (e.g. the descriptor array for structured
	// set/get-cfg responses).
	Extension interface{}
}

// CommandHandleRegistry owns the command-handle list, the active
// handle slot, and the monotonic token counter. It implements
// component C of the driver: preprocess/postprocess/bail_out/
// lookup_by_token/destroy.
type CommandHandleRegistry struct {
	logger log.Logger
	shm    *ShmManager

	tokenCounter uint64 // atomic, holds the last token issued (low 32 bits)

	active *CommandHandle
	list   List[*CommandHandle]
}

// NewCommandHandleRegistry constructs a registry whose token counter
// starts at DynamicTokenStart, as the original's atomic counter does
// at init time.
func NewCommandHandleRegistry(logger log.Logger, shm *ShmManager) *CommandHandleRegistry {
	r := &CommandHandleRegistry{
		logger: logger,
		shm:    shm,
	}
	atomic.StoreUint64(&r.tokenCounter, uint64(DynamicTokenStart))
	return r
}

// nextToken atomically increments the counter and returns the new
// value, truncated to 32 bits (the counter is allowed to wrap).
func (r *CommandHandleRegistry) nextToken() uint32 {
	v := atomic.AddUint64(&r.tokenCounter, 1)
	return uint32(v)
}

// Preprocess allocates and activates a new CommandHandle for opcode.
// It fails with Busy if a command is already active and opcode is not
// GRAPH_CLOSE.
func (r *CommandHandleRegistry) Preprocess(opcode Opcode, isInband bool) (*CommandHandle, error) {
	if r.active != nil && !isCloseExempt(opcode) {
		return nil, errBusy("command-handle: active command exists")
	}
	h := &CommandHandle{
		Token:    r.nextToken(),
		Opcode:   opcode,
		IsInband: isInband,
	}
	r.active = h
	return h, nil
}

// Postprocess latches the active handle into the waiting set after a
// successful send. The active pointer keeps referring to the same
// object until the matching response arrives.
func (r *CommandHandleRegistry) Postprocess() {
	if r.active == nil {
		return
	}
	r.active.WaitForRsp = true
	r.list.AddTail(r.active)
	r.logger.Debugw("command dispatched", "token", r.active.Token, "opcode", r.active.Opcode)
}

// BailOut releases the active handle's SHM region and payload buffer
// and clears the active pointer. It is idempotent against a nil
// active pointer, matching every pre-send failure path funneling
// through here.
func (r *CommandHandleRegistry) BailOut() {
	if r.active == nil {
		return
	}
	r.shm.Free(r.active.Region)
	r.active.Payload = nil
	r.active = nil
}

// LookupByToken performs a linear scan of the in-flight list; O(N) is
// acceptable because N equals the number of in-flight commands, which
// is always small under the one-active-per-class invariant.
func (r *CommandHandleRegistry) LookupByToken(token uint32) (*CommandHandle, bool) {
	return r.list.Find(func(h *CommandHandle) bool { return h.Token == token })
}

// Destroy removes the handle matching token from the list
// and releases its resources. It must be called at most once per
// command; calling it again for a token that is no longer present is
// a silent no-op.
//
// If the handle being destroyed is also the active handle, the active
// pointer is cleared -- the original only clears it when the
// found-by-token handle equals the active handle, which keeps the
// active pointer from ever dangling as long as commands complete in
// token order (the invariant this driver relies on).
func (r *CommandHandleRegistry) Destroy(token uint32) {
	h, ok := r.list.Find(func(h *CommandHandle) bool { return h.Token == token })
	if !ok {
		return
	}
	r.list.FindDelete(func(x *CommandHandle) bool { return x == h })
	r.releaseResources(h)
}

// releaseResources frees a handle's SHM region and payload buffer and
// clears the active pointer if it still refers to h. It does not
// touch the list -- callers that already removed h (Destroy,
// CrashSweeper via PopFront) call this directly afterward.
func (r *CommandHandleRegistry) releaseResources(h *CommandHandle) {
	r.shm.Free(h.Region)
	h.Payload = nil
	if r.active == h {
		r.active = nil
	}
}

// Active returns the currently active handle, or nil.
func (r *CommandHandleRegistry) Active() *CommandHandle {
	return r.active
}

// Len reports how many commands are currently in flight.
func (r *CommandHandleRegistry) Len() int {
	return r.list.Len()
}

// PopFront removes and returns the oldest in-flight handle. The crash
// sweeper uses this to avoid walking a list while unlinking entries
// out from under itself; the popped handle's resources are not yet
// released -- callers must call ReleaseHandle once they are done with
// it (after dispatching to the secondary result-handler table).
func (r *CommandHandleRegistry) PopFront() (*CommandHandle, bool) {
	return r.list.PopFront()
}

// ReleaseHandle frees a handle's resources after it has already been
// removed from the list (via PopFront). It is the counterpart to
// Destroy for callers that walk the list by popping instead of
// looking up by token.
func (r *CommandHandleRegistry) ReleaseHandle(h *CommandHandle) {
	r.releaseResources(h)
}
