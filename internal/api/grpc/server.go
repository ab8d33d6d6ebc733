// Package grpcapi exposes the recognition ingress stream. Capture clients
// that cannot hold a WebSocket open (native recorders, the scripted test
// client) push recognition events or raw audio over a client stream.
package grpcapi

import (
	"context"
	"encoding/base64"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"lecture-interpreter/internal/observability/logging"
	"lecture-interpreter/internal/service/recognition"
)

const (
	ServiceName      = "lecture.interpreter.v1.RecognitionIngress"
	StreamMethodName = "/" + ServiceName + "/Stream"
)

// Pusher receives recognition events from capture clients.
type Pusher interface {
	Attach() (detach func())
	Push(ev recognition.Event) bool
}

// AudioSink receives raw audio frames for engines that recognize server side.
type AudioSink interface {
	SendAudio(ctx context.Context, audio []byte) error
}

// IngressServer is the server API of the recognition ingress service.
type IngressServer interface {
	Stream(grpc.ServerStream) error
}

// ServiceDesc describes the ingress service. Messages are
// google.protobuf.Struct frames with the fields type, text, code and audio
// (base64); the stream closes with google.protobuf.Empty.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IngressServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       streamHandler,
			ClientStreams: true,
		},
	},
	Metadata: "lecture/interpreter/v1/ingress.proto",
}

func streamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(IngressServer).Stream(stream)
}

type Server struct {
	pusher Pusher
	audio  AudioSink
	log    zerolog.Logger
}

// Register adds the ingress service to g. Either collaborator may be nil;
// frames for a missing collaborator are rejected.
func Register(g *grpc.Server, pusher Pusher, audio AudioSink) *Server {
	s := &Server{
		pusher: pusher,
		audio:  audio,
		log:    logging.WithComponent("grpc-ingress"),
	}
	g.RegisterService(&ServiceDesc, s)
	return s
}

// Stream consumes frames until the client closes its side, then acknowledges
// with an empty message.
func (s *Server) Stream(stream grpc.ServerStream) error {
	ctx := stream.Context()

	if s.pusher != nil {
		detach := s.pusher.Attach()
		defer detach()
	}

	var frames, dropped int
	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			s.log.Info().Int("frames", frames).Int("dropped", dropped).Msg("Ingress stream closed")
			return stream.SendMsg(&emptypb.Empty{})
		}
		if err != nil {
			return err
		}
		frames++

		ok, err := s.handle(ctx, msg)
		if err != nil {
			return err
		}
		if !ok {
			dropped++
		}
	}
}

func (s *Server) handle(ctx context.Context, msg *structpb.Struct) (bool, error) {
	fields := msg.GetFields()
	typ := fields["type"].GetStringValue()

	if typ == "audio" {
		if s.audio == nil {
			return false, status.Error(codes.FailedPrecondition, "audio ingest not supported")
		}
		data, err := base64.StdEncoding.DecodeString(fields["audio"].GetStringValue())
		if err != nil {
			return false, status.Errorf(codes.InvalidArgument, "invalid audio payload: %v", err)
		}
		if err := s.audio.SendAudio(ctx, data); err != nil {
			s.log.Debug().Err(err).Msg("Dropped audio frame")
			return false, nil
		}
		return true, nil
	}

	if s.pusher == nil {
		return false, status.Error(codes.FailedPrecondition, "event ingest not supported")
	}
	ev, err := recognition.ParseEvent(typ, fields["text"].GetStringValue(), fields["code"].GetStringValue())
	if err != nil {
		return false, status.Error(codes.InvalidArgument, err.Error())
	}
	return s.pusher.Push(ev), nil
}

// EventFrame builds the wire frame for a recognition event.
func EventFrame(typ, text, code string) *structpb.Struct {
	fields := map[string]*structpb.Value{"type": structpb.NewStringValue(typ)}
	if text != "" {
		fields["text"] = structpb.NewStringValue(text)
	}
	if code != "" {
		fields["code"] = structpb.NewStringValue(code)
	}
	return &structpb.Struct{Fields: fields}
}

// AudioFrame builds the wire frame for a chunk of raw audio.
func AudioFrame(audio []byte) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"type":  structpb.NewStringValue("audio"),
		"audio": structpb.NewStringValue(base64.StdEncoding.EncodeToString(audio)),
	}}
}

// IngressStream is the client side of an open ingress stream.
type IngressStream struct {
	stream grpc.ClientStream
}

// OpenStream starts an ingress stream on cc.
func OpenStream(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (*IngressStream, error) {
	stream, err := cc.NewStream(ctx, &ServiceDesc.Streams[0], StreamMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &IngressStream{stream: stream}, nil
}

func (c *IngressStream) Send(frame *structpb.Struct) error {
	return c.stream.SendMsg(frame)
}

// CloseAndRecv half-closes the stream and waits for the acknowledgement.
func (c *IngressStream) CloseAndRecv() error {
	if err := c.stream.CloseSend(); err != nil {
		return err
	}
	return c.stream.RecvMsg(new(emptypb.Empty))
}
