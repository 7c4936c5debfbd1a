/*
Copyright 2017 The Kubernetes Authors.
Copyright 2018 Intel Coporation.

SPDX-License-Identifier: Apache-2.0
*/

// Command sgm-satellite is the listening half of the packetized
// transport: it accepts connections from one or more sgm-driver
// processes and hands each accepted connection's inbound frames to an
// in-process packet router, the same gprouter.Router a driver uses
// locally. It has no APM containers of its own in this reference
// build; it exists to give pkg/transport's Conn a real peer to dial
// and to exercise the router's remote-domain bookkeeping end to end.
package main

import (
	"flag"
	"net"

	"github.com/audiograph/sgm/pkg/gprouter"
	"github.com/audiograph/sgm/pkg/log"
	"github.com/audiograph/sgm/pkg/sgm"
	"github.com/audiograph/sgm/pkg/sgmcommon"
	"github.com/audiograph/sgm/pkg/transport"
)

var (
	endpoint = flag.String("endpoint", "tcp://:9200", "satellite listen endpoint for incoming driver connections")
	_        = log.InitSimpleFlags()
)

func main() {
	flag.Parse()

	logger := log.NewSimpleLogger(log.NewSimpleConfig())
	log.Set(logger)

	closer, err := sgmcommon.InitTracer("sgm-satellite")
	if err != nil {
		logger.Fatalf("Failed to initialize tracer: %s\n", err)
	}
	defer closer.Close()

	router, err := gprouter.New(logger)
	if err != nil {
		logger.Fatalf("Failed to initialize packet router: %s\n", err)
	}

	network, address, err := sgmcommon.ParseEndpoint(*endpoint)
	if err != nil {
		logger.Fatalf("Invalid endpoint: %s\n", err)
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		logger.Fatalf("Failed to listen on %s: %s\n", *endpoint, err)
	}
	logger.Infow("sgm-satellite listening", "endpoint", *endpoint)

	for {
		raw, err := ln.Accept()
		if err != nil {
			logger.Errorw("accept failed", "error", err)
			continue
		}
		logger.Infow("driver connected", "remote", raw.RemoteAddr())
		transport.NewConn(logger.With("peer", raw.RemoteAddr().String()), raw, func(pkt *sgm.Packet) {
			if err := router.AsyncSend(pkt); err != nil {
				logger.Warnw("no local container for inbound packet", "dstDomain", pkt.DstDomain, "opcode", pkt.Opcode, "error", err)
			}
		})
	}
}
