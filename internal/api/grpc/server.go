// Package grpc exposes task completion events as a gRPC server stream.
package grpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/clintrovert/taskhook/internal/broadcast"
	"github.com/clintrovert/taskhook/pkg/types"
)

// ServiceName is the fully-qualified gRPC service name
const ServiceName = "taskhook.v1.TaskEvents"

// SubscribeMethod is the full method name of the event stream
const SubscribeMethod = "/" + ServiceName + "/Subscribe"

// TaskEventsServer is the server API for the TaskEvents service
type TaskEventsServer interface {
	Subscribe(*emptypb.Empty, grpc.ServerStream) error
}

// ServiceDesc describes the TaskEvents service:
//
//	service TaskEvents {
//	  rpc Subscribe(google.protobuf.Empty) returns (stream google.protobuf.Struct);
//	}
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TaskEventsServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "taskhook/v1/events.proto",
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TaskEventsServer).Subscribe(in, stream)
}

// Server implements the TaskEvents gRPC service
type Server struct {
	hub    *broadcast.Hub
	logger *zap.Logger
}

// NewServer creates a new gRPC server
func NewServer(hub *broadcast.Hub, logger *zap.Logger) *Server {
	return &Server{
		hub:    hub,
		logger: logger,
	}
}

// Register registers the server with a gRPC server
func (s *Server) Register(grpcServer *grpc.Server) {
	grpcServer.RegisterService(&ServiceDesc, s)
}

// Subscribe streams completion events until the client goes away
func (s *Server) Subscribe(_ *emptypb.Empty, stream grpc.ServerStream) error {
	sub := s.hub.Subscribe(0)
	defer sub.Close()

	ctx := stream.Context()
	s.logger.Info("grpc subscriber connected")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("grpc subscriber disconnected")
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			msg, err := EventToStruct(event)
			if err != nil {
				s.logger.Error("failed to encode event", zap.Error(err))
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// EventToStruct encodes the wire fields of a completion event
func EventToStruct(event types.CompletionEvent) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"taskId":        event.TaskID,
		"status":        string(event.Status),
		"commitMessage": event.CommitMessage,
	})
}

// Subscribe opens an event stream on conn and calls fn for each event until
// ctx ends or the stream fails
func Subscribe(ctx context.Context, conn grpc.ClientConnInterface, fn func(*structpb.Struct)) error {
	stream, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], SubscribeMethod)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			return err
		}
		fn(msg)
	}
}
