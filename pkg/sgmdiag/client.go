/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgmdiag

import (
	"context"

	"google.golang.org/grpc"
)

// GetStatus calls the Status RPC against a connection dialed with
// grpc.WithCodec(JSONCodec{}); it is the hand-written counterpart to
// the client stub protoc-gen-go-grpc would otherwise generate.
func GetStatus(ctx context.Context, conn *grpc.ClientConn) (*StatusReply, error) {
	reply := new(StatusReply)
	if err := conn.Invoke(ctx, "/sgmdiag.Diag/Status", &StatusRequest{}, reply); err != nil {
		return nil, err
	}
	return reply, nil
}
