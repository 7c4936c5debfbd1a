/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

import "github.com/audiograph/sgm/pkg/log"

// LoggingResultHandlerTable is a default ResultHandlerTable that only
// logs each response; it is what cmd/sgm-driver installs as both the
// primary and (crash-sweep) secondary table when no richer upper
// layer is wired in.
type LoggingResultHandlerTable struct {
	Logger log.Logger
}

func (t LoggingResultHandlerTable) log(method string, info *RspInfo) {
	t.Logger.Debugw(method, "token", info.Token, "opcode", info.Opcode, "status", info.Status.String())
}

func (t LoggingResultHandlerTable) GraphOpenRsp(info *RspInfo)      { t.log("GraphOpenRsp", info) }
func (t LoggingResultHandlerTable) GraphCloseRsp(info *RspInfo)     { t.log("GraphCloseRsp", info) }
func (t LoggingResultHandlerTable) GraphPrepareRsp(info *RspInfo)   { t.log("GraphPrepareRsp", info) }
func (t LoggingResultHandlerTable) GraphStartStopSuspendFlushRsp(info *RspInfo) {
	t.log("GraphStartStopSuspendFlushRsp", info)
}
func (t LoggingResultHandlerTable) SetGetCfgRsp(info *RspInfo)           { t.log("SetGetCfgRsp", info) }
func (t LoggingResultHandlerTable) SetGetCfgPackedRsp(info *RspInfo)     { t.log("SetGetCfgPackedRsp", info) }
func (t LoggingResultHandlerTable) SetPersistentRsp(info *RspInfo)       { t.log("SetPersistentRsp", info) }
func (t LoggingResultHandlerTable) SetPersistentPackedRsp(info *RspInfo) { t.log("SetPersistentPackedRsp", info) }
func (t LoggingResultHandlerTable) EventRegRsp(info *RspInfo)            { t.log("EventRegRsp", info) }

var _ ResultHandlerTable = LoggingResultHandlerTable{}

// LoggingDataPathHandlers is a default DataPathHandlers that only
// logs each satellite data-path event.
type LoggingDataPathHandlers struct {
	Logger log.Logger
}

func (h LoggingDataPathHandlers) MediaFormat(readPortIndex int, payload []byte) {
	h.Logger.Debugw("MediaFormat", "readPortIndex", readPortIndex, "bytes", len(payload))
}

func (h LoggingDataPathHandlers) OperatingFrameSize(payload []byte) {
	h.Logger.Debugw("OperatingFrameSize", "bytes", len(payload))
}

func (h LoggingDataPathHandlers) MetadataCloneMD(payload []byte) {
	h.Logger.Debugw("MetadataCloneMD", "bytes", len(payload))
}

func (h LoggingDataPathHandlers) MetadataTracking(payload []byte) {
	h.Logger.Debugw("MetadataTracking", "bytes", len(payload))
}

var _ DataPathHandlers = LoggingDataPathHandlers{}

// NoopCacheOps is a CacheOps implementation for drivers that run
// without real shared-memory hardware backing their ShmRegions (e.g.
// this module's reference binaries, which allocate plain Go byte
// slices rather than mapping device memory) -- flush/invalidate have
// nothing to do because there is no separate cache domain to
// synchronize.
type NoopCacheOps struct{}

func (NoopCacheOps) Flush(addr uint64, length uint32) error      { return nil }
func (NoopCacheOps) Invalidate(addr uint64, length uint32) error { return nil }

var _ CacheOps = NoopCacheOps{}

// LocalHandleTranslator is a HandleTranslator for drivers with no
// real satellite memory-mapping facility: it hands back the region's
// local VA truncated to 32 bits as a stand-in remote handle, enough
// to exercise the dispatch and copy-back paths against a local,
// in-process satellite stub.
type LocalHandleTranslator struct{}

func (LocalHandleTranslator) Translate(satelliteDomainID uint32, region *ShmRegion) (uint32, error) {
	return uint32(region.LocalVA), nil
}

var _ HandleTranslator = LocalHandleTranslator{}
