/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

import (
	"github.com/audiograph/sgm/pkg/log"
)

// InvalidDomainID is the APM_PROC_DOMAIN_ID_INVALID sentinel for an
// unknown satellite domain.
const InvalidDomainID uint32 = 0xFFFFFFFF

// SgmIds is this driver's identity: created at init; SatelliteDomainID
// starts INVALID and becomes immutable for the life of the driver
// after the first GRAPH_OPEN discovers it from an embedded container
// property.
type SgmIds struct {
	ContainerID       uint32
	LogID             uint32
	MasterDomainID    uint32
	SatelliteDomainID uint32
}

// ModuleNode is one entry of the driver's three module lists:
// modules physically local to this container ("olc"), modules that
// live on the satellite ("satellite"), and modules this driver has
// registered event interest in ("event-reg").
type ModuleNode struct {
	InstanceID             uint32
	ModuleID               uint32
	ContainerID            uint32
	SubGraphID             uint32
	RegisteredWithRouter bool
}

// GraphInfo owns the three module lists and the two cross-domain IPC
// connection slot tables the driver tracks across the lifetime of an
// open graph.
type GraphInfo struct {
	OLCModules       List[*ModuleNode]
	SatelliteModules List[*ModuleNode]
	EventRegModules  List[*ModuleNode]

	IPCWrite *ConnectionSlotTable
	IPCRead  *ConnectionSlotTable
}

// Driver is the root owner: exactly one per container. It ties
// together every other component (A-J) and implements component K,
// init/deinit.
type Driver struct {
	logger log.Logger

	Ids SgmIds

	Graph GraphInfo

	Cmds      *CommandHandleRegistry
	Shm       *ShmManager
	PathDelay *PathDelayRegistry
	Events    EventRegistrationList
	Dispatcher *Dispatcher
	Router     *ResponseRouter
	EventHandler *EventHandler
	Sweeper      *CrashSweeper

	packetRouter PacketRouter
	cache        CacheOps

	eventQueue    *Queue
	responseQueue *Queue

	// InBandThreshold configures OLC_IPC_MAX_IN_BAND_PAYLOAD_SIZE;
	// see Dispatcher.InBandThreshold for why this is configurable
	// rather than fixed.
	InBandThreshold uint32
}

// DriverConfig bundles everything Driver needs at construction time.
type DriverConfig struct {
	Logger            log.Logger
	ContainerID       uint32
	LogID             uint32
	MasterDomainID    uint32
	PacketRouter      PacketRouter
	Cache             CacheOps
	HandleTranslator  HandleTranslator
	Primary           ResultHandlerTable
	Secondary         ResultHandlerTable
	DataPath          DataPathHandlers
	PathDelayUpdater  UpdatePathDelay
	InBandThreshold   uint32
}

// NewDriver constructs a Driver with every component wired together,
// but does not yet register it with the packet router -- call Init
// for that.
func NewDriver(cfg DriverConfig) *Driver {
	d := &Driver{
		logger: cfg.Logger,
		Ids: SgmIds{
			ContainerID:       cfg.ContainerID,
			LogID:             cfg.LogID,
			MasterDomainID:    cfg.MasterDomainID,
			SatelliteDomainID: InvalidDomainID,
		},
		packetRouter:    cfg.PacketRouter,
		cache:           cfg.Cache,
		InBandThreshold: cfg.InBandThreshold,
	}
	if d.InBandThreshold == 0 {
		d.InBandThreshold = DefaultInBandThreshold
	}

	d.Shm = NewShmManager(cfg.HandleTranslator)
	d.Cmds = NewCommandHandleRegistry(cfg.Logger, d.Shm)
	d.PathDelay = NewPathDelayRegistry(cfg.Logger, d)
	d.Dispatcher = NewDispatcher(cfg.Logger, d.Cmds, d.Shm, cfg.Cache, cfg.PacketRouter)
	d.Dispatcher.InBandThreshold = d.InBandThreshold
	d.Router = NewResponseRouter(cfg.Logger, d.Cmds, cfg.Cache, cfg.PacketRouter, cfg.Primary, d.PathDelay)
	d.EventHandler = NewEventHandler(cfg.Logger, cfg.PacketRouter, &d.Events, d.PathDelay, cfg.PathDelayUpdater, cfg.DataPath)
	d.Sweeper = NewCrashSweeper(cfg.Logger, d.Cmds, cfg.Secondary)

	return d
}

// SendRegisterContainerDelayEvent implements EventSender for
// PathDelayRegistry: it constructs the tiny APM header +
// apm_module_register_events_t payload the original builds in a
// throwaway heap buffer, and sends it via a dedicated data path that
// bypasses the normal CommandHandle pipeline -- its response carries
// a zero token and is never correlated through the command-handle
// registry.
func (d *Driver) SendRegisterContainerDelayEvent(satelliteContainerID uint32, register bool) error {
	opcode := OpcodeRegisterModuleEvents
	if !register {
		opcode = OpcodeDeregisterModuleEvents
	}
	payload := make([]byte, 8)
	// event_id, register_flag -- a minimal internal register-events
	// body; the real apm_module_register_events_t carries more, but
	// those fields are opaque to this driver and owned by the APM
	// wire schema (§6.2), not reproduced here.
	const offloadEventIDGetContainerDelay = uint32(OffloadEventIDGetContainerDelay)
	putUint32(payload[0:4], offloadEventIDGetContainerDelay)
	flag := uint32(0)
	if register {
		flag = 1
	}
	putUint32(payload[4:8], flag)

	return d.packetRouter.AllocAndSend(d.Ids.MasterDomainID, d.Ids.SatelliteDomainID, d.Ids.MasterDomainID, satelliteContainerID, 0, opcode, payload, nil)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Init performs the driver's startup sequence: stamp identity,
// register with the packet router, then create the event and response
// queues in order. The token counter is set up by
// NewCommandHandleRegistry, not here. Queue capacities and bitmask
// wiring are a framework concern (§6.3); this method only creates the
// queues, which RunOnce then services.
func (d *Driver) Init() error {
	if err := d.packetRouter.RegisterContainer(d.Ids.ContainerID, d.route, nil); err != nil {
		return errTransportFailed(err, "driver init: register_container failed")
	}

	d.eventQueue = NewQueue(queueName("sgm-event", d.Ids.LogID), MaxEventQueueElements)
	d.responseQueue = NewQueue(queueName("sgm-response", d.Ids.LogID), MaxResponseQueueElements)

	d.logger.Infow("sgm driver initialized", "container", d.Ids.ContainerID, "logID", d.Ids.LogID)
	return nil
}

// route is the unified GPR callback the driver registers with the
// packet router: it classifies an inbound packet by opcode and
// enqueues it onto either the event or response queue.
func (d *Driver) route(pkt *Packet) {
	switch pkt.Opcode {
	case OpcodeEventModuleToClient,
		OpcodeEventRdShMemEPMediaFormat,
		OpcodeEventShMemEPOperatingFrameSize,
		OpcodeEventMetadataCloneMD,
		OpcodeEventMetadataTracking,
		OpcodeEventContainerDelay:
		d.eventQueue.Push(Message{Packet: pkt})
	default:
		d.responseQueue.Push(Message{Packet: pkt})
	}
}

// RunOnce services one pending event, then one pending response, in
// that priority order -- the event queue is always drained ahead of
// the response queue within a single loop iteration, which is
// load-bearing for events a command-response handler may depend on.
func (d *Driver) RunOnce() {
	if msg, ok := d.eventQueue.TryPopFront(); ok {
		d.EventHandler.Handle(msg.Packet)
	}
	if msg, ok := d.responseQueue.TryPopFront(); ok {
		d.Router.Handle(msg.Packet)
	}
}

// NotifySatelliteDown triggers the crash sweeper in reaction to a
// service-registry down-notification for domainID. A multi-satellite
// driver could use domainID to recognize that the notification is for
// a satellite it does not currently talk to and ignore it; this
// driver's single-satellite model only ever has one live domain, so
// the id is accepted but not filtered on.
func (d *Driver) NotifySatelliteDown(domainID uint32) int {
	d.logger.Warnw("satellite down notification received", "domainID", domainID)
	return d.Sweeper.Sweep()
}

// InFlightCommands reports how many commands are currently awaiting a
// response.
func (d *Driver) InFlightCommands() int {
	return d.Cmds.Len()
}

// EventRegistrationCount reports how many module-to-client event
// registrations are currently live.
func (d *Driver) EventRegistrationCount() int {
	return d.Events.Len()
}

// PathDelaySubscriptionCount reports how many satellite containers
// currently have a live container-delay subscription.
func (d *Driver) PathDelaySubscriptionCount() int {
	return d.PathDelay.SubscriptionCount()
}

// Deinit tears the driver down in reverse order of Init. A failing
// step does not stop the remaining teardown; the first error
// encountered is returned.
func (d *Driver) Deinit() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(d.packetRouter.DeregisterContainer(d.Ids.ContainerID))
	d.Events = EventRegistrationList{}
	d.Graph = GraphInfo{}
	d.PathDelay.DestroyAll(true)

	d.logger.Infow("sgm driver deinitialized", "container", d.Ids.ContainerID, "firstError", firstErr)
	return firstErr
}
