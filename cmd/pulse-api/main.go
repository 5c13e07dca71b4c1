// README: Entry point; loads config, wires services, starts HTTP server and background schedulers.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pulse/internal/config"
	httptransport "pulse/internal/http"
	"pulse/internal/infra"
	pulsemaps "pulse/internal/maps"
	"pulse/internal/modules/location"
	"pulse/internal/modules/matchmaker"
	"pulse/internal/modules/ratelimit"
	pulsesignal "pulse/internal/modules/signal"
	"pulse/internal/modules/visibility"
	"pulse/internal/notify"
	"pulse/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	var geocoder *pulsemaps.GeocodeService
	if cfg.Maps.APIKey != "" {
		geocoder, err = pulsemaps.NewGeocodeService(cfg.Maps.APIKey)
		if err != nil {
			log.Printf("geocoding disabled: %v", err)
		}
	}

	source := location.NewStaticSource(types.Point{Lat: cfg.Location.DefaultLat, Lng: cfg.Location.DefaultLng})
	watcher := location.NewWatcher(source, cfg.Location)
	stopWatch, err := watcher.Start(nil)
	if err != nil {
		log.Fatalf("position watcher: %v", err)
	}
	defer stopWatch()

	limitStore := ratelimit.NewStore(redisClient)
	createLimiter := ratelimit.NewLimiter(ratelimit.ResourceSignalCreate, cfg.Signal.MaxPerHour, ratelimit.DefaultWindow, limitStore)
	revealLimiter := ratelimit.NewLimiter(ratelimit.ResourceReveal, cfg.Privacy.RevealMaxPerHour, ratelimit.DefaultWindow, limitStore)
	messageCap := ratelimit.NewCap(ratelimit.ResourceMessage, cfg.Privacy.MessageCap, limitStore)

	sink := notify.NewLogSink()

	signalStore := pulsesignal.NewStore(dbPool, redisClient)
	signalSvc := pulsesignal.NewService(signalStore, createLimiter, watcher, geocoder, sink, cfg.Signal)

	policyStore := visibility.NewStore(dbPool)
	visibilitySvc := visibility.NewService(policyStore, signalStore, cfg.Privacy.DefaultVisibilityM)

	stream := matchmaker.NewStore(redisClient)
	matcherSvc := matchmaker.NewService(policyStore, stream, sink, cfg.Privacy.DefaultVisibilityM)
	// An expired signal ends its owner's matching session, same as deactivate.
	sink.BindSessions(matcherSvc)

	handler := httptransport.NewRouter(ctx, httptransport.RouterDeps{
		Signals:    signalSvc,
		Matcher:    matcherSvc,
		Visibility: visibilitySvc,
		Policy:     policyStore,
		Positions:  watcher,
		Reveals:    revealLimiter,
		Messages:   messageCap,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go signalSvc.RunExpiryMonitor(ctx)

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
