/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

import (
	"github.com/audiograph/sgm/pkg/wire"
)

// bytesPayloadBuilder adapts an already-packed byte slice to the
// Dispatcher's two-pass PayloadBuilder contract. Every handler in this
// file builds its wire bytes up front with the real pkg/wire packers
// (which already measure then fill internally); there is nothing left
// for the dispatcher to measure a second time, so Fill is a plain
// copy.
type bytesPayloadBuilder struct {
	buf []byte
}

func (b *bytesPayloadBuilder) Size() (uint32, error) { return uint32(len(b.buf)), nil }

func (b *bytesPayloadBuilder) Fill(dest []byte) error {
	copy(dest, b.buf)
	return nil
}

// dispatchTarget builds the DispatchTarget every satellite-addressed
// command handler shares: APM-to-APM addressing between this
// container's master domain and the satellite domain learned from the
// first GRAPH_OPEN.
func (d *Driver) dispatchTarget(clientData interface{}) DispatchTarget {
	return DispatchTarget{
		SrcDomain:         d.Ids.MasterDomainID,
		DstDomain:         d.Ids.SatelliteDomainID,
		SrcPort:           APMModuleInstanceID,
		DstPort:           APMModuleInstanceID,
		SatelliteDomainID: d.Ids.SatelliteDomainID,
		IsAPMDestination:  true,
		ClientData:        clientData,
	}
}

// OpenRequest bundles the combined open payload handle_open splits,
// plus the addressing needed to reach the satellite before its domain
// id has necessarily been learned from the payload itself.
type OpenRequest struct {
	Payload    *OpenPayload
	DstDomain  uint32
	ClientData interface{}
}

// HandleOpen implements handle_open: split the combined payload into
// local and satellite images (component E), record the local/
// satellite module lists and IPC slot tables for the lifetime of the
// graph, pack the satellite image into one APM command payload
// (component D), and dispatch it (component F). The satellite's
// PROC_DOMAIN container property, if present, latches
// Ids.SatelliteDomainID the first time it is seen.
func (d *Driver) HandleOpen(req *OpenRequest) (*CommandHandle, error) {
	if req == nil || req.Payload == nil {
		return nil, errBadParam(nil, "handle_open: missing payload")
	}

	split, err := NewSplitter().Split(d.Ids.ContainerID, req.Payload)
	if err != nil {
		return nil, err
	}

	d.Graph.OLCModules = List[*ModuleNode]{}
	d.Graph.SatelliteModules = List[*ModuleNode]{}
	for _, m := range split.LocalImage.Modules {
		d.Graph.OLCModules.AddTail(&ModuleNode{InstanceID: m.InstanceID, ModuleID: m.ModuleID, ContainerID: m.ContainerID, SubGraphID: m.SubGraphID})
	}
	for _, m := range split.SatelliteImage.Modules {
		d.Graph.SatelliteModules.AddTail(&ModuleNode{InstanceID: m.InstanceID, ModuleID: m.ModuleID, ContainerID: m.ContainerID, SubGraphID: m.SubGraphID})
	}
	d.Graph.IPCWrite = split.IPCWrite
	d.Graph.IPCRead = split.IPCRead

	buf, domain, err := buildOpenPayload(&split.SatelliteImage)
	if err != nil {
		return nil, err
	}
	if domain != 0 && d.Ids.SatelliteDomainID == InvalidDomainID {
		d.Ids.SatelliteDomainID = domain
	}

	target := d.dispatchTarget(req.ClientData)
	target.DstDomain = req.DstDomain
	if target.DstDomain == 0 {
		target.DstDomain = d.Ids.SatelliteDomainID
	}
	target.SatelliteDomainID = target.DstDomain

	return d.Dispatcher.Dispatch(OpcodeGraphOpen, &bytesPayloadBuilder{buf: buf}, target)
}

// buildOpenPayload packs a satellite split image into one concatenated
// command payload: sub-graph config, container config (which also
// strips and learns the PROC_DOMAIN property), per-sub-graph module
// lists, module properties, connections, IMCL peer info, control
// links, and any pre-formed param-data blobs, in that order.
func buildOpenPayload(img *SplitImage) ([]byte, uint32, error) {
	var sections [][]byte
	var domain uint32

	if len(img.SubGraphs) > 0 {
		buf, err := wire.PackSubGraphConfig(APMModuleInstanceID, img.SubGraphs)
		if err != nil {
			return nil, 0, errBadParam(err, "handle_open: pack sub-graph config")
		}
		sections = append(sections, buf)
	}

	if len(img.SatelliteContainers) > 0 {
		buf, d, err := wire.PackContainerConfig(APMModuleInstanceID, img.SatelliteContainers)
		if err != nil {
			return nil, 0, errBadParam(err, "handle_open: pack container config")
		}
		domain = d
		sections = append(sections, buf)
	}

	for _, list := range moduleListsBySubGraph(img.Modules) {
		buf, err := wire.PackModuleList(APMModuleInstanceID, list)
		if err != nil {
			return nil, 0, errBadParam(err, "handle_open: pack module list")
		}
		sections = append(sections, buf)
	}

	if len(img.PropCfgs) > 0 {
		buf, err := wire.PackModuleProperties(APMModuleInstanceID, img.PropCfgs)
		if err != nil {
			return nil, 0, errBadParam(err, "handle_open: pack module properties")
		}
		sections = append(sections, buf)
	}

	if len(img.Connections) > 0 {
		buf, err := wire.PackModuleConnections(APMModuleInstanceID, img.Connections)
		if err != nil {
			return nil, 0, errBadParam(err, "handle_open: pack module connections")
		}
		sections = append(sections, buf)
	}

	if len(img.IMCLPeers) > 0 {
		buf, err := wire.PackIMCLPeerInfo(APMModuleInstanceID, img.IMCLPeers)
		if err != nil {
			return nil, 0, errBadParam(err, "handle_open: pack IMCL peer info")
		}
		sections = append(sections, buf)
	}

	if len(img.ControlLinks) > 0 {
		buf, err := wire.PackModuleCtrlLinkCfg(APMModuleInstanceID, img.ControlLinks)
		if err != nil {
			return nil, 0, errBadParam(err, "handle_open: pack control links")
		}
		sections = append(sections, buf)
	}

	if len(img.ParamData) > 0 {
		blobs := make([][]byte, len(img.ParamData))
		for i, pd := range img.ParamData {
			blobs[i] = pd.Blob
		}
		buf, err := wire.PackParamData(blobs)
		if err != nil {
			return nil, 0, errBadParam(err, "handle_open: pack param data")
		}
		sections = append(sections, buf)
	}

	var total uint32
	for _, s := range sections {
		total += uint32(len(s))
	}
	out := make([]byte, 0, total)
	for _, s := range sections {
		out = append(out, s...)
	}
	return out, domain, nil
}

// moduleListsBySubGraph groups a flat module slice into one
// wire.ModuleList per sub-graph id, preserving first-seen order.
func moduleListsBySubGraph(modules []ModuleDesc) []*wire.ModuleList {
	order := make([]uint32, 0)
	bySubGraph := make(map[uint32]*wire.ModuleList)
	for _, m := range modules {
		list, ok := bySubGraph[m.SubGraphID]
		if !ok {
			list = &wire.ModuleList{SubGraphID: m.SubGraphID}
			bySubGraph[m.SubGraphID] = list
			order = append(order, m.SubGraphID)
		}
		list.Modules = append(list.Modules, wire.ModuleListEntry{InstanceID: m.InstanceID, ModuleID: m.ModuleID})
	}
	lists := make([]*wire.ModuleList, 0, len(order))
	for _, id := range order {
		lists = append(lists, bySubGraph[id])
	}
	return lists
}

// SubGraphListRequest is the shared request shape for
// PREPARE/START/STOP/SUSPEND/FLUSH: the sub-graph ids the command
// applies to.
type SubGraphListRequest struct {
	SubGraphIDs []uint32
	ClientData  interface{}
}

func (d *Driver) handleSubGraphList(opcode Opcode, subGraphIDs []uint32, clientData interface{}, close *wire.CloseExtra) (*CommandHandle, error) {
	buf, err := wire.PackSubGraphList(APMModuleInstanceID, subGraphIDs, close)
	if err != nil {
		return nil, errBadParam(err, "pack sub-graph list")
	}
	return d.Dispatcher.Dispatch(opcode, &bytesPayloadBuilder{buf: buf}, d.dispatchTarget(clientData))
}

// HandlePrepare implements handle_prepare.
func (d *Driver) HandlePrepare(req *SubGraphListRequest) (*CommandHandle, error) {
	return d.handleSubGraphList(OpcodeGraphPrepare, req.SubGraphIDs, req.ClientData, nil)
}

// HandleStart implements handle_start.
func (d *Driver) HandleStart(req *SubGraphListRequest) (*CommandHandle, error) {
	return d.handleSubGraphList(OpcodeGraphStart, req.SubGraphIDs, req.ClientData, nil)
}

// HandleSuspend implements handle_suspend.
func (d *Driver) HandleSuspend(req *SubGraphListRequest) (*CommandHandle, error) {
	return d.handleSubGraphList(OpcodeGraphSuspend, req.SubGraphIDs, req.ClientData, nil)
}

// HandleStop implements handle_stop.
func (d *Driver) HandleStop(req *SubGraphListRequest) (*CommandHandle, error) {
	return d.handleSubGraphList(OpcodeGraphStop, req.SubGraphIDs, req.ClientData, nil)
}

// HandleFlush implements handle_flush.
func (d *Driver) HandleFlush(req *SubGraphListRequest) (*CommandHandle, error) {
	return d.handleSubGraphList(OpcodeGraphFlush, req.SubGraphIDs, req.ClientData, nil)
}

// CloseRequest is handle_close's request: the sub-graph ids being
// closed, plus the connections and control links PackSubGraphList
// appends for GRAPH_CLOSE only.
type CloseRequest struct {
	SubGraphIDs []uint32
	Connections []*wire.ModuleConnection
	CtrlLinks   []*wire.ModuleCtrlLinkCfg
	ClientData  interface{}
}

// HandleClose implements handle_close.
func (d *Driver) HandleClose(req *CloseRequest) (*CommandHandle, error) {
	close := &wire.CloseExtra{Connections: req.Connections, CtrlLinks: req.CtrlLinks}
	return d.handleSubGraphList(OpcodeGraphClose, req.SubGraphIDs, req.ClientData, close)
}

// SetGetCfgRequest is the shared request shape for
// handle_set_get_cfg, handle_set_get_cfg_packed, handle_persistent_cfg
// and handle_persistent_packed: SetBlobs are already-formed
// apm_module_param_data_t blocks to write (a SET); GetDescriptors or
// RspBuf name where a GET's response should land once it arrives.
// OriginalClient, when set, is the caller whose own GET_CFG request
// this command answers, so the router can forward a synthesized
// response once the satellite replies.
type SetGetCfgRequest struct {
	SetBlobs       [][]byte
	GetDescriptors []ParamDataDescriptor
	RspBuf         []byte
	OriginalClient *Packet
	ClientData     interface{}
}

func (r *SetGetCfgRequest) isGet() bool {
	return len(r.GetDescriptors) > 0 || r.RspBuf != nil
}

func (d *Driver) handleSetGetCfg(setOpcode, getOpcode Opcode, req *SetGetCfgRequest) (*CommandHandle, error) {
	opcode := setOpcode
	if req.isGet() {
		opcode = getOpcode
	}

	buf, err := wire.PackParamData(req.SetBlobs)
	if err != nil {
		return nil, errBadParam(err, "pack param data")
	}

	h, err := d.Dispatcher.Dispatch(opcode, &bytesPayloadBuilder{buf: buf}, d.dispatchTarget(req.ClientData))
	if err != nil {
		return nil, err
	}
	if req.isGet() {
		h.Extension = &SetGetCfgExtension{Descriptors: req.GetDescriptors, OriginalClient: req.OriginalClient}
		h.RspBuf = req.RspBuf
	}
	return h, nil
}

// HandleSetGetCfg implements handle_set_get_cfg: the APM-destined,
// structured-descriptor SET/GET_CFG variant.
func (d *Driver) HandleSetGetCfg(req *SetGetCfgRequest) (*CommandHandle, error) {
	return d.handleSetGetCfg(OpcodeSetCfg, OpcodeGetCfg, req)
}

// HandleSetGetCfgPacked implements handle_set_get_cfg_packed: the
// module-destined, flat-buffer SET/GET_CFG variant.
func (d *Driver) HandleSetGetCfgPacked(req *SetGetCfgRequest) (*CommandHandle, error) {
	return d.handleSetGetCfg(OpcodeSetCfgPacked, OpcodeGetCfgPacked, req)
}

// HandlePersistentCfg implements handle_persistent_cfg: the
// APM-destined persistent-config SET/GET variant.
func (d *Driver) HandlePersistentCfg(req *SetGetCfgRequest) (*CommandHandle, error) {
	return d.handleSetGetCfg(OpcodeSetPersistentCfg, OpcodeGetPersistentCfg, req)
}

// HandlePersistentPacked implements handle_persistent_packed: the
// module-destined, packed persistent-config SET/GET variant.
func (d *Driver) HandlePersistentPacked(req *SetGetCfgRequest) (*CommandHandle, error) {
	return d.handleSetGetCfg(OpcodeSetPersistentCfgPacked, OpcodeGetPersistentCfgPacked, req)
}

// RegisterModuleEventsRequest carries the module instance id and
// caller correlation needed to build an APM_REGISTER_MODULE_EVENTS
// (or deregister) command. Unlike
// SendRegisterContainerDelayEvent's internal, uncorrelated send, this
// command is issued on behalf of an upstream client and does expect a
// normal correlated response.
type RegisterModuleEventsRequest struct {
	ModuleInstanceID uint32
	EventID          uint32
	ClientData       interface{}
}

func (d *Driver) handleRegisterModuleEvents(opcode Opcode, req *RegisterModuleEventsRequest) (*CommandHandle, error) {
	payload := make([]byte, 8)
	putUint32(payload[0:4], req.EventID)
	flag := uint32(0)
	if opcode == OpcodeRegisterModuleEvents {
		flag = 1
	}
	putUint32(payload[4:8], flag)

	target := d.dispatchTarget(req.ClientData)
	target.DstPort = req.ModuleInstanceID
	return d.Dispatcher.Dispatch(opcode, &bytesPayloadBuilder{buf: payload}, target)
}

// HandleRegisterModuleEvents implements handle_register_module_events
// for both the register and deregister direction.
func (d *Driver) HandleRegisterModuleEvents(req *RegisterModuleEventsRequest, register bool) (*CommandHandle, error) {
	opcode := OpcodeRegisterModuleEvents
	if !register {
		opcode = OpcodeDeregisterModuleEvents
	}
	return d.handleRegisterModuleEvents(opcode, req)
}

// PathDelayGetRequest is handle_set_get_path_delay's request: the
// master-side path id the caller wants the satellite delay for, and
// the satellite container id whose container-delay event subscription
// should be refcounted against it once the response confirms the
// satellite-side path id.
type PathDelayGetRequest struct {
	MasterPathID         uint32
	SatelliteContainerID uint32
	ClientData           interface{}
}

// HandleSetGetPathDelay implements handle_set_get_path_delay: it asks
// the satellite for the delay of masterPathID. The registry is not
// updated here -- the satellite-side path id is only known once the
// response arrives, so ResponseRouter drives
// PathDelayRegistry.UpdatePathMap/AddContainerForPath/Register(true)
// after a successful GET_PATH_DELAY response (see router.go).
func (d *Driver) HandleSetGetPathDelay(req *PathDelayGetRequest) (*CommandHandle, error) {
	buf, err := wire.PackPathDelayGet(APMModuleInstanceID, wire.PathDelayRecord{PathID: req.MasterPathID})
	if err != nil {
		return nil, errBadParam(err, "pack path-delay get")
	}

	target := d.dispatchTarget(req.ClientData)
	target.HasSecondary = true
	target.SecondaryOpcode = OpcodeGetPathDelay

	h, err := d.Dispatcher.Dispatch(OpcodeGetPathDelay, &bytesPayloadBuilder{buf: buf}, target)
	if err != nil {
		return nil, err
	}
	h.Extension = &PathDelayGetExtension{MasterPathID: req.MasterPathID, SatelliteContainerID: req.SatelliteContainerID}
	return h, nil
}
