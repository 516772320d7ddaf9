package server

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

// ServiceName is the fully qualified name of the control service.
const ServiceName = "inboxdock.v1.Control"

// Host is the daemon side of the control service.
type Host interface {
	Status(ctx context.Context) (*HostStatus, error)
	ShowWindow(ctx context.Context) error
	ToggleWindow(ctx context.Context) error
	CloseWindow(ctx context.Context) error
	Quit(ctx context.Context) error
	CheckForUpdates(ctx context.Context) error
	DownloadUpdate(ctx context.Context) error
	ReloadContent(ctx context.Context) error
	Navigate(ctx context.Context, url string) (bool, error)
	OpenDevTools(ctx context.Context) error
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) ([]Setting, error)
}

// ============================================================================
// gRPC Service Definition (hand-written, JSON-encoded messages)
// ============================================================================

// ControlServer is the server interface for the control service.
type ControlServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*HostStatus, error)
	ShowWindow(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	ToggleWindow(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	CloseWindow(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Quit(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	CheckForUpdates(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	DownloadUpdate(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	ReloadContent(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Navigate(context.Context, *NavigateRequest) (*NavigateResult, error)
	OpenDevTools(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	GetSetting(context.Context, *SettingKey) (*Setting, error)
	SetSetting(context.Context, *Setting) (*emptypb.Empty, error)
	ListSettings(context.Context, *emptypb.Empty) (*SettingList, error)
}

// unary adapts a typed ControlServer method to a grpc.MethodHandler.
func unary[Req, Resp any](method string, call func(ControlServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(*Req))
			})
		},
	}
}

// ControlServiceDesc describes the control service for grpc.Server.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetStatus", ControlServer.GetStatus),
		unary("ShowWindow", ControlServer.ShowWindow),
		unary("ToggleWindow", ControlServer.ToggleWindow),
		unary("CloseWindow", ControlServer.CloseWindow),
		unary("Quit", ControlServer.Quit),
		unary("CheckForUpdates", ControlServer.CheckForUpdates),
		unary("DownloadUpdate", ControlServer.DownloadUpdate),
		unary("ReloadContent", ControlServer.ReloadContent),
		unary("Navigate", ControlServer.Navigate),
		unary("OpenDevTools", ControlServer.OpenDevTools),
		unary("GetSetting", ControlServer.GetSetting),
		unary("SetSetting", ControlServer.SetSetting),
		unary("ListSettings", ControlServer.ListSettings),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inboxdock/control.proto",
}

// RegisterControlServer registers srv with the gRPC server.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}

// ============================================================================
// Service Implementation
// ============================================================================

type controlService struct {
	host Host
}

var empty = &emptypb.Empty{}

// ack converts a host error into a gRPC status.
func ack(err error) (*emptypb.Empty, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return empty, nil
}

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.FailedPrecondition, err.Error())
	}
}

func (s *controlService) GetStatus(ctx context.Context, _ *emptypb.Empty) (*HostStatus, error) {
	st, err := s.host.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return st, nil
}

func (s *controlService) ShowWindow(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return ack(s.host.ShowWindow(ctx))
}

func (s *controlService) ToggleWindow(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return ack(s.host.ToggleWindow(ctx))
}

func (s *controlService) CloseWindow(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return ack(s.host.CloseWindow(ctx))
}

func (s *controlService) Quit(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return ack(s.host.Quit(ctx))
}

func (s *controlService) CheckForUpdates(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return ack(s.host.CheckForUpdates(ctx))
}

func (s *controlService) DownloadUpdate(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return ack(s.host.DownloadUpdate(ctx))
}

func (s *controlService) ReloadContent(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return ack(s.host.ReloadContent(ctx))
}

func (s *controlService) Navigate(ctx context.Context, req *NavigateRequest) (*NavigateResult, error) {
	if req.URL == "" {
		return nil, status.Error(codes.InvalidArgument, "url is required")
	}
	internal, err := s.host.Navigate(ctx, req.URL)
	if err != nil {
		return nil, toStatus(err)
	}
	return &NavigateResult{Internal: internal}, nil
}

func (s *controlService) OpenDevTools(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return ack(s.host.OpenDevTools(ctx))
}

func (s *controlService) GetSetting(ctx context.Context, req *SettingKey) (*Setting, error) {
	value, err := s.host.GetSetting(ctx, req.Key)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &Setting{Key: req.Key, Value: value}, nil
}

func (s *controlService) SetSetting(ctx context.Context, req *Setting) (*emptypb.Empty, error) {
	if err := s.host.SetSetting(ctx, req.Key, req.Value); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return empty, nil
}

func (s *controlService) ListSettings(ctx context.Context, _ *emptypb.Empty) (*SettingList, error) {
	settings, err := s.host.ListSettings(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SettingList{Settings: settings}, nil
}
