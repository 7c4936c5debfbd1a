/*
Copyright 2017 The Kubernetes Authors.
Copyright 2018 Intel Coporation.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"flag"
	"io/ioutil"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	yaml "gopkg.in/yaml.v2"

	"github.com/audiograph/sgm/pkg/gprouter"
	"github.com/audiograph/sgm/pkg/log"
	"github.com/audiograph/sgm/pkg/sgm"
	"github.com/audiograph/sgm/pkg/sgmcommon"
	"github.com/audiograph/sgm/pkg/sgmdiag"
	"github.com/audiograph/sgm/pkg/transport"
)

var (
	endpoint       = flag.String("endpoint", "tcp://:9199", "sgmdiag gRPC endpoint for net.Listen")
	containerID    = flag.Uint64("container-id", 1, "this driver's container id")
	logID          = flag.Uint64("log-id", 1, "diagnostic log id, used to name the event/response queues")
	masterDomainID = flag.Uint64("master-domain-id", 1, "this driver's master process domain id")
	bootstrapFile  = flag.String("bootstrap", "", "optional YAML file mapping satellite domain id to transport endpoint")
	_              = log.InitSimpleFlags()
)

// bootstrapEntry is one row of the optional static satellite table:
// sparing operators from passing one -peer flag per satellite.
type bootstrapEntry struct {
	DomainID uint32 `yaml:"domain_id"`
	Endpoint string `yaml:"endpoint"`
}

func loadBootstrap(path string) ([]bootstrapEntry, error) {
	if path == "" {
		return nil, nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []bootstrapEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func main() {
	flag.Parse()
	app := "sgm-driver"

	logger := log.NewSimpleLogger(log.NewSimpleConfig())
	log.Set(logger)

	closer, err := sgmcommon.InitTracer(app)
	if err != nil {
		logger.Fatalf("Failed to initialize tracer: %s\n", err)
	}
	defer closer.Close()

	router, err := gprouter.New(logger)
	if err != nil {
		logger.Fatalf("Failed to initialize packet router: %s\n", err)
	}

	entries, err := loadBootstrap(*bootstrapFile)
	if err != nil {
		logger.Fatalf("Failed to load bootstrap file: %s\n", err)
	}
	for _, e := range entries {
		entry := e
		conn, err := transport.Dial(logger, entry.Endpoint, func(pkt *sgm.Packet) {
			logger.Warnw("unsolicited inbound packet before driver registration, dropping", "opcode", pkt.Opcode)
		})
		if err != nil {
			logger.Errorw("failed to dial satellite", "domainID", entry.DomainID, "endpoint", entry.Endpoint, "error", err)
			continue
		}
		router.RegisterRemoteDomain(entry.DomainID, conn)
		logger.Infow("satellite bootstrap registered", "domainID", entry.DomainID, "endpoint", entry.Endpoint)
	}

	handlers := sgm.LoggingResultHandlerTable{Logger: logger}
	driver := sgm.NewDriver(sgm.DriverConfig{
		Logger:           logger,
		ContainerID:      uint32(*containerID),
		LogID:            uint32(*logID),
		MasterDomainID:   uint32(*masterDomainID),
		PacketRouter:     router,
		Cache:            sgm.NoopCacheOps{},
		HandleTranslator: sgm.LocalHandleTranslator{},
		Primary:          handlers,
		Secondary:        handlers,
		DataPath:         sgm.LoggingDataPathHandlers{Logger: logger},
	})

	if err := driver.Init(); err != nil {
		logger.Fatalf("Failed to initialize driver: %s\n", err)
	}
	defer driver.Deinit()

	diagServer := &sgmdiag.Server{
		ContainerID:   driver.Ids.ContainerID,
		Driver:        driver,
		NextRequestID: func() string { return uuid.New().String() },
	}

	service := func(s *grpc.Server) {
		sgmdiag.Register(s, diagServer)
	}
	server := &sgmcommon.NonBlockingGRPCServer{
		Endpoint:      *endpoint,
		ServerOptions: []grpc.ServerOption{grpc.CustomCodec(sgmdiag.JSONCodec{})},
	}

	logger.Infow("sgm-driver running", "containerID", driver.Ids.ContainerID, "diagEndpoint", *endpoint)
	if err := server.Run(context.Background(), service); err != nil {
		logger.Fatalf("Failed to run diagnostics server: %s\n", err)
	}
}
