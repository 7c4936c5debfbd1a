/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Command sgmctl queries a running sgm-driver's diagnostics service
// and prints a snapshot of its live state.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"github.com/audiograph/sgm/pkg/log"
	"github.com/audiograph/sgm/pkg/sgmcommon"
	"github.com/audiograph/sgm/pkg/sgmdiag"
)

var (
	endpoint = flag.String("endpoint", "tcp://127.0.0.1:9199", "sgm-driver diagnostics endpoint")
	timeout  = flag.Duration("timeout", 5*time.Second, "RPC timeout")
	_        = log.InitSimpleFlags()
)

func main() {
	flag.Parse()

	logger := log.NewSimpleLogger(log.NewSimpleConfig())
	log.Set(logger)

	dialOpts := sgmcommon.ChooseDialOpts(*endpoint,
		grpc.WithCodec(sgmdiag.JSONCodec{}),
		grpc.WithInsecure(),
		grpc.WithBlock(),
	)

	network, address, err := sgmcommon.ParseEndpoint(*endpoint)
	if err != nil {
		logger.Fatalf("Invalid endpoint: %s\n", err)
	}
	dialTarget := address
	if network == "unix" {
		dialTarget = *endpoint
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := grpc.DialContext(ctx, dialTarget, dialOpts...)
	if err != nil {
		logger.Fatalf("Failed to connect to %s: %s\n", *endpoint, err)
	}
	defer conn.Close()

	status, err := sgmdiag.GetStatus(ctx, conn)
	if err != nil {
		logger.Fatalf("Status RPC failed: %s\n", err)
	}

	fmt.Printf("container:               %d\n", status.ContainerID)
	fmt.Printf("in-flight commands:      %d\n", status.InFlightCommands)
	fmt.Printf("event registrations:     %d\n", status.EventRegistrations)
	fmt.Printf("path-delay subscriptions: %d\n", status.PathDelaySubscriptions)
	fmt.Printf("request id:              %s\n", status.RequestID)
}
