/*
Copyright 2017 The Kubernetes Authors.
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgmcommon

import (
	"context"
	"fmt"
	"io"

	"github.com/grpc-ecosystem/grpc-opentracing/go/otgrpc"
	"github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"google.golang.org/grpc"

	"github.com/audiograph/sgm/pkg/log"
)

// PayloadFormatter is responsible for turning a gRPC request or response
// into a string.
type PayloadFormatter interface {
	// Sprint serializes the gRPC request or response as string.
	Sprint(payload interface{}) string
}

// CompletePayloadFormatter dumps the entire request or response as
// string. Beware that this may include sensitive information!
type CompletePayloadFormatter struct{}

// Sprint uses fmt.Sprint("%+v") to format the entire payload.
func (c CompletePayloadFormatter) Sprint(payload interface{}) string {
	result := fmt.Sprintf("%+v", payload)
	if result == "" {
		// Seeing "response:" in a gRPC trace is confusing.
		// Show something instead that confirms that really
		// nothing was sent or received.
		return "<empty>"
	}
	return result
}

// NullPayloadFormatter just produces "nil" or "<filtered>".
type NullPayloadFormatter struct{}

// Sprint just produces "nil" or "<filtered>".
func (n NullPayloadFormatter) Sprint(payload interface{}) string {
	if payload == nil {
		return "nil"
	}
	return "<filtered>"
}

// delayedFormatter takes a formatter and a payload and
// formats as string when needed.
type delayedFormatter struct {
	formatter PayloadFormatter
	payload   interface{}
}

func (d *delayedFormatter) String() string {
	return d.formatter.Sprint(d.payload)
}

// LogGRPCServer returns a gRPC interceptor for a gRPC server which
// logs the server-side call information via the provided logger.
// Method names are printed at the "Debug" level, with detailed
// request and response information if (and only if!) a formatter for
// those is provided. That's because sensitive information may
// be included in those data structures. Failed method calls
// are printed at the "Error" level.
func LogGRPCServer(logger log.Logger, formatter PayloadFormatter) grpc.UnaryServerInterceptor {
	if formatter == nil {
		// Always print some information about the payload.
		formatter = NullPayloadFormatter{}
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx = logGRPCPre(ctx, logger, formatter, "received", info.FullMethod, req)
		resp, err := handler(ctx, req)
		logGRPCPost(ctx, formatter, "sending", err, resp)
		return resp, err
	}
}

// LogGRPCClient does the same as LogGRPCServer, only on the client side.
// There is no need for a logger because that gets passed in.
func LogGRPCClient(formatter PayloadFormatter) grpc.UnaryClientInterceptor {
	if formatter == nil {
		// Always print some information about the payload.
		formatter = NullPayloadFormatter{}
	}

	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = logGRPCPre(ctx, log.FromContext(ctx), formatter, "sending", method, req)
		err := invoker(ctx, method, req, reply, cc, opts...)
		logGRPCPost(ctx, formatter, "received", err, reply)
		return err
	}
}

func logGRPCPre(ctx context.Context, logger log.Logger, formatter PayloadFormatter, msg, method string, req interface{}) context.Context {
	logger = logger.With("method", method)
	logger.Debugw(msg, "request", &delayedFormatter{formatter, req})
	return log.WithLogger(ctx, logger)
}

func logGRPCPost(ctx context.Context, formatter PayloadFormatter, msg string, err error, reply interface{}) {
	if err != nil {
		log.FromContext(ctx).Errorw(msg, "error", err)
	} else {
		log.FromContext(ctx).Debugw(msg, "response", &delayedFormatter{formatter, reply})
	}
}

// TraceGRPCPayload returns a span decorator which adds the request
// and response as tags to the call's span if (and only if) a
// formatter is given.
func TraceGRPCPayload(formatter PayloadFormatter) otgrpc.SpanDecoratorFunc {
	return func(sp opentracing.Span, method string, req, reply interface{}, err error) {
		if formatter != nil {
			sp.SetTag("request", &delayedFormatter{formatter, req})
			if err == nil {
				sp.SetTag("response", &delayedFormatter{formatter, reply})
			}
		}
	}
}

// InitTracer initializes the global OpenTracing tracer, using Jaeger
// and the provided name for the current process. Must be called at
// the start of main(). The result is an io.Closer whose Close cleans
// up at the end of main().
func InitTracer(component string) (io.Closer, error) {
	// Add support for the usual env variables, in particular
	// JAEGER_AGENT_HOST, which is needed when running only one
	// Jaeger agent per cluster.
	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		// parsing errors might happen here, such as when we get a string where we expect a number
		return nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = component
	}

	closer, err := cfg.InitGlobalTracer(component)
	if err != nil {
		return nil, fmt.Errorf("init jaeger tracer: %v", err)
	}
	return closer, nil
}
