/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

import (
	"github.com/audiograph/sgm/pkg/log"
)

// PathDelayMapping associates a master-side delay-path id with the
// satellite-side path id the satellite APM uses for the same path.
type PathDelayMapping struct {
	MasterPathID    uint32
	SatellitePathID uint32
}

// ContainerDelaySubscription tracks, for one satellite container, the
// set of master path ids that need its container-delay event, and
// whether the register-event command has actually been sent.
type ContainerDelaySubscription struct {
	SatelliteContainerID uint32
	IsRegistered         bool
	RefcountPathIDs      []uint32
}

func (s *ContainerDelaySubscription) hasPath(masterPathID uint32) bool {
	for _, id := range s.RefcountPathIDs {
		if id == masterPathID {
			return true
		}
	}
	return false
}

func (s *ContainerDelaySubscription) removePath(masterPathID uint32) {
	for i, id := range s.RefcountPathIDs {
		if id == masterPathID {
			s.RefcountPathIDs = append(s.RefcountPathIDs[:i], s.RefcountPathIDs[i+1:]...)
			return
		}
	}
}

// EventSender synthesizes the register/deregister-event command the
// path-delay registry sends outside the normal command-handle
// pipeline. Its response is not correlated through the command-handle
// registry -- the token is always zero.
type EventSender interface {
	SendRegisterContainerDelayEvent(satelliteContainerID uint32, register bool) error
}

// PathDelayRegistry implements component I: the two-level registry
// mapping master path ids to satellite path ids, and satellite
// containers to their refcounted container-delay subscriptions.
type PathDelayRegistry struct {
	logger log.Logger
	sender EventSender

	pathMap       map[uint32]*PathDelayMapping // keyed by master_path_id
	subscriptions map[uint32]*ContainerDelaySubscription
}

// NewPathDelayRegistry constructs an empty registry.
func NewPathDelayRegistry(logger log.Logger, sender EventSender) *PathDelayRegistry {
	return &PathDelayRegistry{
		logger:        logger,
		sender:        sender,
		pathMap:       make(map[uint32]*PathDelayMapping),
		subscriptions: make(map[uint32]*ContainerDelaySubscription),
	}
}

// AddContainerForPath ensures sat_cont_id has a subscription and that
// it refcounts master_path_id.
func (r *PathDelayRegistry) AddContainerForPath(satContainerID, masterPathID uint32) {
	sub, ok := r.subscriptions[satContainerID]
	if !ok {
		sub = &ContainerDelaySubscription{SatelliteContainerID: satContainerID}
		r.subscriptions[satContainerID] = sub
	}
	if !sub.hasPath(masterPathID) {
		sub.RefcountPathIDs = append(sub.RefcountPathIDs, masterPathID)
	}
}

// UpdatePathMap inserts or removes a master/satellite path id
// mapping.
func (r *PathDelayRegistry) UpdatePathMap(masterID, satelliteID uint32, add bool) {
	if add {
		r.pathMap[masterID] = &PathDelayMapping{MasterPathID: masterID, SatellitePathID: satelliteID}
		return
	}
	delete(r.pathMap, masterID)
}

// LookupByMasterID returns the mapping for a master path id.
func (r *PathDelayRegistry) LookupByMasterID(masterID uint32) (*PathDelayMapping, bool) {
	m, ok := r.pathMap[masterID]
	return m, ok
}

// LookupBySatelliteID returns the mapping for a satellite path id,
// used to translate an inbound container-delay event.
func (r *PathDelayRegistry) LookupBySatelliteID(satelliteID uint32) (*PathDelayMapping, bool) {
	for _, m := range r.pathMap {
		if m.SatellitePathID == satelliteID {
			return m, true
		}
	}
	return nil, false
}

// Register sends the register (up=true) or deregister (up=false)
// event command for every subscription whose registration state does
// not already match up; a deregister is sent only for a subscription
// whose refcounted path list is empty.
func (r *PathDelayRegistry) Register(up bool) error {
	for _, sub := range r.subscriptions {
		if up {
			if sub.IsRegistered {
				continue
			}
			if err := r.sender.SendRegisterContainerDelayEvent(sub.SatelliteContainerID, true); err != nil {
				return err
			}
			sub.IsRegistered = true
			continue
		}
		if !sub.IsRegistered || len(sub.RefcountPathIDs) != 0 {
			continue
		}
		if err := r.sender.SendRegisterContainerDelayEvent(sub.SatelliteContainerID, false); err != nil {
			return err
		}
		sub.IsRegistered = false
	}
	return nil
}

// DestroyPath removes a master path id from the map and from every
// subscription that refcounts it, deregistering and dropping the
// subscription once its refcount reaches zero.
func (r *PathDelayRegistry) DestroyPath(masterID uint32) error {
	delete(r.pathMap, masterID)
	for satContainerID, sub := range r.subscriptions {
		if !sub.hasPath(masterID) {
			continue
		}
		sub.removePath(masterID)
		if len(sub.RefcountPathIDs) == 0 {
			if err := r.sender.SendRegisterContainerDelayEvent(sub.SatelliteContainerID, false); err != nil {
				r.logger.Errorw("failed to deregister container-delay event", "container", satContainerID, "error", err)
			}
			delete(r.subscriptions, satContainerID)
		}
	}
	return nil
}

// SubscriptionCount reports how many satellite containers currently
// have a live container-delay subscription.
func (r *PathDelayRegistry) SubscriptionCount() int {
	return len(r.subscriptions)
}

// DestroyAll clears every refcount list and subscription, optionally
// deregistering each container delay event first.
func (r *PathDelayRegistry) DestroyAll(deregisterRemaining bool) {
	for satContainerID, sub := range r.subscriptions {
		sub.RefcountPathIDs = nil
		if deregisterRemaining && sub.IsRegistered {
			if err := r.sender.SendRegisterContainerDelayEvent(satContainerID, false); err != nil {
				r.logger.Errorw("failed to deregister container-delay event during teardown", "container", satContainerID, "error", err)
			}
		}
	}
	r.subscriptions = make(map[uint32]*ContainerDelaySubscription)
	r.pathMap = make(map[uint32]*PathDelayMapping)
}
