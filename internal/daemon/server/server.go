// Package server implements the local gRPC control service for the daemon.
package server

import (
	"context"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// Server is the daemon's gRPC server.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	port       int
}

// New creates a new server listening on the loopback interface.
// Pass port 0 for dynamic allocation.
func New(port int, host Host, entry *log.Entry) (*Server, error) {
	listener, err := (&net.ListenConfig{}).Listen(context.TODO(), "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	// Get actual port if dynamically allocated
	actualPort := listener.Addr().(*net.TCPAddr).Port

	logger := entry.WithField("component", "control")
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Debugf("%s failed: %v", info.FullMethod, err)
		} else {
			logger.Tracef("%s ok", info.FullMethod)
		}
		return resp, err
	}))
	RegisterControlServer(grpcServer, &controlService{host: host})

	return &Server{
		grpcServer: grpcServer,
		listener:   listener,
		port:       actualPort,
	}, nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Serve starts serving requests. This blocks until Stop is called.
func (s *Server) Serve() error {
	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
