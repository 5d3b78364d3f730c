package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"punchclock.org/internal/clock"
	"punchclock.org/internal/config"
	"punchclock.org/internal/httpapi"
	"punchclock.org/internal/ledger"
	"punchclock.org/internal/obs"
	"punchclock.org/internal/policy"
	"punchclock.org/internal/punch"
	"punchclock.org/internal/store/pg"
	"punchclock.org/internal/timesheet"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Register metrics and the JSON logger before anything else logs.
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		ledgerStore ledger.Store
		policyStore policy.Store
		probe       httpapi.ReadyProbe
		closeStore  func() error
	)
	if cfg.PGDSN != "" {
		st, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		ledgerStore = st
		policyStore = st
		probe = httpapi.ReadyProbe{DB: st.DB()}
		closeStore = st.Close
	} else {
		ledgerStore = ledger.NewInMemory()
		policyStore = policy.NewInMemoryStore()
		closeStore = func() error { return nil }
	}

	pol, err := policy.NewService(policyStore)
	if err != nil {
		log.Fatalf("policy service: %v", err)
	}
	punchSvc, err := punch.NewService(ledgerStore, pol)
	if err != nil {
		log.Fatalf("punch service: %v", err)
	}
	sheets, err := timesheet.NewAggregator(ledgerStore, clock.StaticLocations{Loc: cfg.Location()})
	if err != nil {
		log.Fatalf("aggregator: %v", err)
	}

	api := httpapi.New(probe, version, punchSvc, sheets, pol, clock.System{})
	api.Tune(cfg.TokenTTL, cfg.RateBurst, cfg.RatePerSec)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting punchclock-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Optional gRPC health listener for infra probes that speak
	// grpc_health_v1 instead of HTTP.
	var grpcSrv *grpc.Server
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		hs := health.NewServer()
		hs.SetServingStatus("punchclock-api", healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcSrv, hs)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	_ = closeStore()
	log.Println("Stopped")
}
