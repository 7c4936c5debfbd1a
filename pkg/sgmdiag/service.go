/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgmdiag

import (
	"context"

	"google.golang.org/grpc"
)

// StatusRequest is the (currently empty) request for the single
// Status method this service exposes.
type StatusRequest struct{}

// StatusReply reports a snapshot of one driver's live state.
type StatusReply struct {
	ContainerID            uint32 `json:"container_id"`
	InFlightCommands       int    `json:"in_flight_commands"`
	EventRegistrations     int    `json:"event_registrations"`
	PathDelaySubscriptions int    `json:"path_delay_subscriptions"`
	RequestID              string `json:"request_id"`
}

// DriverStatus is the subset of *sgm.Driver this service reads. It is
// expressed as an interface, rather than importing pkg/sgm directly,
// so a future second implementation (or a test double) can stand in
// without this package depending on sgm's internals beyond these three
// getters.
type DriverStatus interface {
	InFlightCommands() int
	EventRegistrationCount() int
	PathDelaySubscriptionCount() int
}

// Server implements the Status RPC against a live driver.
type Server struct {
	ContainerID uint32
	Driver      DriverStatus

	// NextRequestID is called once per incoming request to obtain a
	// correlation id attached to the reply; cmd/sgm-driver wires this
	// to a google/uuid generator.
	NextRequestID func() string
}

func (s *Server) status(ctx context.Context, req *StatusRequest) (*StatusReply, error) {
	reqID := ""
	if s.NextRequestID != nil {
		reqID = s.NextRequestID()
	}
	return &StatusReply{
		ContainerID:            s.ContainerID,
		InFlightCommands:       s.Driver.InFlightCommands(),
		EventRegistrations:     s.Driver.EventRegistrationCount(),
		PathDelaySubscriptions: s.Driver.PathDelaySubscriptionCount(),
		RequestID:              reqID,
	}, nil
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/sgmdiag.Diag/Status"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the hand-written stand-in for what
// protoc-gen-go-grpc would otherwise generate for a one-method "Diag"
// service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "sgmdiag.Diag",
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Status",
			Handler:    statusHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sgmdiag.proto",
}

// Register wires a *Server into a *grpc.Server under ServiceDesc. The
// server must have been constructed with grpc.CustomCodec(JSONCodec{})
// so the handler's dec/enc round-trip through JSON instead of
// protobuf wire format.
func Register(s *grpc.Server, server *Server) {
	s.RegisterService(&ServiceDesc, server)
}
