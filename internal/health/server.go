package health

import (
	"log"
	"net"

	"google.golang.org/grpc"
)

// GRPCServer serves the health protocol on its own listener.
type GRPCServer struct {
	addr   string
	logger *log.Logger
	srv    *grpc.Server
}

func NewGRPCServer(addr string, t *Tracker, logger *log.Logger) *GRPCServer {
	srv := grpc.NewServer()
	t.Register(srv)
	return &GRPCServer{addr: addr, logger: logger, srv: srv}
}

// Start blocks until the server stops.
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return err
	}
	g.logger.Printf("grpc health listening on %s", lis.Addr())
	return g.srv.Serve(lis)
}

func (g *GRPCServer) Stop() {
	g.srv.GracefulStop()
}
