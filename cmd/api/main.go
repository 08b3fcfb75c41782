package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatelist.org/internal/auth"
	"gatelist.org/internal/httpapi"
	"gatelist.org/internal/obs"
	"gatelist.org/internal/stream"
)

var version = "0.3.1"

func main() {
	obs.Init()

	secret := os.Getenv("GATELIST_AUTH_SECRET")
	if secret == "" {
		log.Fatal("missing GATELIST_AUTH_SECRET")
	}
	codec, err := auth.NewCodec([]byte(secret))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	// Without a DSN the service runs on an in-memory store: everything works,
	// nothing survives a restart. Meant for local development only.
	var (
		store auth.Store
		pg    *auth.PGStore
	)
	if dsn := os.Getenv("GATELIST_PG_DSN"); dsn != "" {
		pg, err = auth.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pg
	} else {
		log.Print("GATELIST_PG_DSN not set, using in-memory store")
		store = auth.NewMemStore()
	}

	events := stream.New()
	store = stream.WrapStore(store, events)

	var svcOpts []auth.ServiceOption
	if os.Getenv("GATELIST_EXPOSE_VERIFICATION_TOKENS") == "true" {
		svcOpts = append(svcOpts, auth.WithExposedVerificationTokens())
	}
	svc := auth.NewService(store, codec, svcOpts...)

	rp := httpapi.ReadyProbe{}
	if pg != nil {
		rp.DB = pg.DB()
	}
	apiOpts := []httpapi.Option{httpapi.WithAuditStream(events)}
	if os.Getenv("GATELIST_SECURE_COOKIES") == "true" {
		apiOpts = append(apiOpts, httpapi.WithSecureCookies())
	}
	api := httpapi.New(svc, rp, version, apiOpts...)

	addr := os.Getenv("GATELIST_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gatelist-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pg != nil {
		_ = pg.Close()
	}
	log.Println("Stopped")
}
