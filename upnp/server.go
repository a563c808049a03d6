package upnp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericyan/omnirender/upnp/internal/ssdp"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	dev *Device
	ss  *ssdp.Server
	hs  *http.Server
}

func NewServer(dev *Device, addr string) (*Server, error) {
	ss, err := ssdp.NewServer(dev, Location(addr))
	if err != nil {
		return nil, err
	}

	hs := &http.Server{
		Addr:              addr,
		Handler:           dev,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{dev, ss, hs}, nil
}

func (srv *Server) ListenAndServe() error {
	if err := srv.dev.Start(); err != nil {
		return err
	}

	var g errgroup.Group

	g.Go(srv.ss.ListenAndServe)
	g.Go(func() error {
		if err := srv.hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return g.Wait()
}

func (srv *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var g errgroup.Group

	g.Go(func() error { return srv.hs.Shutdown(ctx) })
	g.Go(srv.ss.Close)
	g.Go(srv.dev.Close)

	return g.Wait()
}
