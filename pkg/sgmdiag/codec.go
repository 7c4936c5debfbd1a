/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package sgmdiag exposes a tiny gRPC introspection service over a
// running driver: current in-flight command count, path-delay
// subscription count, and live event-registration count. It is built
// without a protoc-generated stub, following the same
// grpc.CustomCodec(...) approach oim-registry's transparent proxy uses
// to speak gRPC without a protobuf stub: a JSON codec plus
// hand-written grpc.ServiceDesc/MethodDesc tables stand in for what
// protoc-gen-go would otherwise generate.
package sgmdiag

import (
	"encoding/json"
	"fmt"
)

// JSONCodec implements the legacy grpc.Codec interface (Marshal,
// Unmarshal, String) using encoding/json instead of protobuf wire
// format, so this service never needs generated .pb.go marshaling
// code.
type JSONCodec struct{}

func (JSONCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (JSONCodec) String() string {
	return "sgmdiag-json"
}

var _ fmt.Stringer = JSONCodec{}
