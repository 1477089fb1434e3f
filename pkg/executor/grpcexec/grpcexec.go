// Package grpcexec implements the execution collaborator over gRPC.
//
// The execution service exposes a single unary method taking and returning
// google.protobuf.Struct; routed action payloads are open-ended maps, so a
// schemaless body avoids regenerating stubs every time an action type grows a
// field. The method is invoked directly on the client connection.
package grpcexec

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/remedly/sdk/pkg/core"
	sdkerrors "github.com/remedly/sdk/pkg/errors"
	transport "github.com/remedly/sdk/pkg/transport/grpc"
)

// DefaultMethod is the full gRPC method name of the execution endpoint.
const DefaultMethod = "/remedly.execution.v1.ExecutionService/Execute"

// Config holds gRPC executor configuration.
type Config struct {
	// Transport carries the connection (required).
	Transport *transport.Transport

	// Method overrides the execution method name.
	Method string

	// CallTimeout bounds each Apply call. Default: 60s.
	CallTimeout time.Duration
}

// Executor invokes the remote execution service.
type Executor struct {
	transport   *transport.Transport
	method      string
	callTimeout time.Duration
}

// New creates a gRPC executor.
func New(cfg *Config) (*Executor, error) {
	if cfg == nil || cfg.Transport == nil {
		return nil, sdkerrors.ErrMissingEndpoint
	}
	method := cfg.Method
	if method == "" {
		method = DefaultMethod
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	return &Executor{
		transport:   cfg.Transport,
		method:      method,
		callTimeout: callTimeout,
	}, nil
}

// Name identifies the collaborator in logs and telemetry.
func (e *Executor) Name() string { return "grpc-executor" }

// Apply submits a routed action and waits for the terminal result.
func (e *Executor) Apply(ctx context.Context, actionType string, payload map[string]any) (*core.ExecutionResult, error) {
	const op = "grpcexec.Apply"

	conn := e.transport.Conn()
	if conn == nil {
		return nil, sdkerrors.E(sdkerrors.KindNetwork, op, "transport is not connected")
	}

	payloadStruct, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindInvalidInput, op, "payload is not representable", err)
	}
	req, err := structpb.NewStruct(map[string]any{"action_type": actionType})
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindInternal, op, "build request", err)
	}
	req.Fields["payload"] = structpb.NewStructValue(payloadStruct)

	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := conn.Invoke(ctx, e.method, req, resp); err != nil {
		return nil, e.mapGRPCError(op, err)
	}

	return resultFromStruct(op, resp)
}

func resultFromStruct(op string, resp *structpb.Struct) (*core.ExecutionResult, error) {
	fields := resp.GetFields()

	jobID := fields["job_id"].GetStringValue()
	if jobID == "" {
		return nil, sdkerrors.E(sdkerrors.KindServer, op, "response carries no job id")
	}

	jobStatus := core.JobStatus(fields["status"].GetStringValue())
	switch jobStatus {
	case core.JobSuccess, core.JobFailed, core.JobPending:
	default:
		return nil, sdkerrors.E(sdkerrors.KindServer, op, "unknown job status "+string(jobStatus))
	}

	result := &core.ExecutionResult{
		JobID:   jobID,
		Status:  jobStatus,
		Details: fields["details"].GetStringValue(),
	}
	if ts := fields["completed_at"].GetStringValue(); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			result.CompletedAt = parsed
		}
	}
	return result, nil
}

func (e *Executor) mapGRPCError(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return sdkerrors.E(sdkerrors.KindNetwork, op, "invoke failed", err)
	}

	var kind sdkerrors.Kind
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		kind = sdkerrors.KindAuthentication
	case codes.ResourceExhausted:
		kind = sdkerrors.KindRateLimit
	case codes.DeadlineExceeded:
		kind = sdkerrors.KindTimeout
	case codes.Unavailable:
		kind = sdkerrors.KindNetwork
	case codes.InvalidArgument, codes.FailedPrecondition:
		kind = sdkerrors.KindExecution
	default:
		kind = sdkerrors.KindServer
	}
	return sdkerrors.E(kind, op, "execution service: "+st.Message(), err)
}

var _ core.Executor = (*Executor)(nil)
