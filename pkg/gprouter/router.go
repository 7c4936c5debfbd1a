/*
Copyright (C) 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package gprouter implements the GPR (General Packet Router)
// collaborator that pkg/sgm.PacketRouter describes: a container table
// mapping a container id to the callback that should receive its
// packets, plus packet allocation, delivery, and teardown.
//
// The container table is modeled directly on oim-registry.Registry's
// RegistryDB (Store/Lookup/Foreach): there, controller ids map to gRPC
// addresses proxied by a StreamDirector; here, container ids map to
// either a local in-process callback or a remote satellite connection
// forwarded through pkg/transport.
package gprouter

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/audiograph/sgm/pkg/log"
	"github.com/audiograph/sgm/pkg/sgm"
)

// ContainerDB stores the mapping from container id to its registered
// entry. It is the gprouter analogue of oim-registry's RegistryDB.
type ContainerDB interface {
	Store(containerID uint32, entry *containerEntry)
	Lookup(containerID uint32) (*containerEntry, bool)
	Delete(containerID uint32)
	Foreach(func(containerID uint32, entry *containerEntry) bool)
}

type containerEntry struct {
	callback sgm.PacketCallback
	opaque   interface{}
}

// MemContainerDB is an in-memory ContainerDB, the gprouter analogue of
// oim-registry's MemRegistryDB.
type MemContainerDB struct {
	mu   sync.RWMutex
	data map[uint32]*containerEntry
}

// NewMemContainerDB constructs an empty in-memory container table.
func NewMemContainerDB() *MemContainerDB {
	return &MemContainerDB{data: make(map[uint32]*containerEntry)}
}

func (m *MemContainerDB) Store(containerID uint32, entry *containerEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[containerID] = entry
}

func (m *MemContainerDB) Lookup(containerID uint32) (*containerEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[containerID]
	return e, ok
}

func (m *MemContainerDB) Delete(containerID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, containerID)
}

func (m *MemContainerDB) Foreach(f func(containerID uint32, entry *containerEntry) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, e := range m.data {
		if !f(id, e) {
			return
		}
	}
}

// RemoteSender forwards a packet to a container that is not
// registered locally -- it is satisfied by pkg/transport.Conn, kept
// as an interface here so gprouter never imports the transport
// package directly (mirroring how oim-registry.StreamDirector dials
// out through a plain grpc.ClientConn rather than a concrete type).
type RemoteSender interface {
	Send(pkt *sgm.Packet) error
}

// Router implements sgm.PacketRouter: container registration, packet
// allocation, delivery, and end-of-life handling.
type Router struct {
	logger log.Logger
	db     ContainerDB

	mu      sync.RWMutex
	remotes map[uint32]RemoteSender // keyed by destination domain id
}

// Option configures a Router at construction time.
type Option func(r *Router) error

// DB overrides the container table; the default is an empty
// MemContainerDB.
func DB(db ContainerDB) Option {
	return func(r *Router) error {
		r.db = db
		return nil
	}
}

// New constructs a Router. With no options it starts with an empty
// in-memory container table and no remote domains registered.
func New(logger log.Logger, options ...Option) (*Router, error) {
	r := &Router{
		logger:  logger,
		db:      NewMemContainerDB(),
		remotes: make(map[uint32]RemoteSender),
	}
	for _, opt := range options {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RegisterRemoteDomain associates a satellite domain id with the
// transport connection used to reach it. Packets whose destination
// container id is not found in the local container table fall back to
// the remote sender registered for the packet's destination domain.
func (r *Router) RegisterRemoteDomain(domainID uint32, sender RemoteSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remotes[domainID] = sender
}

// DeregisterRemoteDomain drops a previously registered remote domain,
// e.g. after a service-registry down-notification.
func (r *Router) DeregisterRemoteDomain(domainID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.remotes, domainID)
}

// RegisterContainer implements sgm.PacketRouter.
func (r *Router) RegisterContainer(containerID uint32, callback sgm.PacketCallback, opaque interface{}) error {
	if callback == nil {
		return errors.New("gprouter: RegisterContainer requires a non-nil callback")
	}
	r.db.Store(containerID, &containerEntry{callback: callback, opaque: opaque})
	r.logger.Debugw("container registered", "containerID", containerID)
	return nil
}

// DeregisterContainer implements sgm.PacketRouter.
func (r *Router) DeregisterContainer(containerID uint32) error {
	r.db.Delete(containerID)
	r.logger.Debugw("container deregistered", "containerID", containerID)
	return nil
}

// AllocPacket implements sgm.PacketRouter: it allocates a Packet with
// a zeroed payload buffer of the requested size.
func (r *Router) AllocPacket(srcDomain, dstDomain, srcPort, dstPort, token uint32, opcode sgm.Opcode, payloadSize uint32, clientData interface{}) (*sgm.Packet, error) {
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

// AsyncSend implements sgm.PacketRouter: deliver pkt to whichever
// container is registered for pkt.DstDomain's container table entry,
// or fall back to the remote sender registered for pkt.DstDomain.
// Local delivery happens on a separate goroutine, since the caller
// (the dispatcher, the response router, or the event handler) must
// never block waiting for the receiving container to drain its
// queue.
func (r *Router) AsyncSend(pkt *sgm.Packet) error {
	if entry, ok := r.db.Lookup(pkt.DstDomain); ok {
		go entry.callback(pkt)
		return nil
	}

	r.mu.RLock()
	remote, ok := r.remotes[pkt.DstDomain]
	r.mu.RUnlock()
	if ok {
		return remote.Send(pkt)
	}

	return errors.Errorf("gprouter: no route to destination port=%d domain=%d", pkt.DstPort, pkt.DstDomain)
}

// AllocAndSend implements sgm.PacketRouter: a convenience combining
// AllocPacket, a payload copy, and AsyncSend for callers (such as the
// path-delay registry's register/deregister-event command) that do
// not need the two-pass measure-then-fill dispatch path.
func (r *Router) AllocAndSend(srcDomain, dstDomain, srcPort, dstPort, token uint32, opcode sgm.Opcode, payload []byte, clientData interface{}) error {
	pkt, err := r.AllocPacket(srcDomain, dstDomain, srcPort, dstPort, token, opcode, uint32(len(payload)), clientData)
	if err != nil {
		return err
	}
	copy(pkt.Payload, payload)
	return r.AsyncSend(pkt)
}

// EndCommand implements sgm.PacketRouter: it reports a terminal
// status for a packet the router itself could not route to a
// handler (e.g. an unsupported opcode). There is no synchronous
// reply path back to a remote caller here; this only logs, matching
// the driver's own silent-drop behavior for unrecognized internal
// events.
func (r *Router) EndCommand(pkt *sgm.Packet, status sgm.Status) {
	r.logger.Warnw("command ended without a handled response", "token", pkt.Token, "opcode", pkt.Opcode, "status", status.String())
}

// FreePacket implements sgm.PacketRouter. The Go garbage collector
// reclaims the payload buffer once unreferenced; this exists to keep
// the call symmetric with the C allocator the original pairs an alloc
// with, and as the place a future pooled-buffer implementation would
// return the buffer to its pool.
func (r *Router) FreePacket(pkt *sgm.Packet) {
	pkt.Payload = nil
}

var _ sgm.PacketRouter = (*Router)(nil)
