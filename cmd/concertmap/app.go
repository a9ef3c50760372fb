package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"concertmap/internal/clock"
	"concertmap/internal/config"
	"concertmap/internal/eventful"
	"concertmap/internal/finder"
	"concertmap/internal/geo"
	"concertmap/internal/geocode"
	appLog "concertmap/internal/log"
	"concertmap/internal/loop"
	"concertmap/internal/mapview"
	"concertmap/internal/storage/sqlite"
	"concertmap/internal/web"
)

// geocodeCacheAge is how long a cached address stays usable.
const geocodeCacheAge = 30 * 24 * time.Hour

// app is the wired kiosk: one loop, one session, the HTTP server and the
// relay it hosts.
type app struct {
	conf  *config.Config
	clock clock.Clock

	loop     *loop.Loop
	hub      *web.Hub
	recorder *mapview.Recorder
	relay    *eventful.Relay
	session  *finder.Session
	store    *sqlite.Store
	server   *http.Server
	ln       net.Listener
}

// newApp binds the listener and builds every component. The bound address
// replaces conf.Listen so a ":0" listen and the default self-relay URL
// agree on the port.
func newApp(conf *config.Config, debug bool, clk clock.Clock) (*app, error) {
	if clk == nil {
		clk = clock.NewSystem()
	}

	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return nil, err
	}
	conf.Listen = ln.Addr().String()

	a := &app{conf: conf, clock: clk, ln: ln}

	var geocoder geocode.Geocoder = geocode.NewNominatim(conf.Geocoder.BaseURL, conf.Geocoder.UserAgent,
		&http.Client{Timeout: conf.Timeouts.Geocode})
	if conf.Geocoder.CachePath != "" {
		store, err := sqlite.Open(conf.Geocoder.CachePath)
		if err != nil {
			_ = ln.Close()
			return nil, err
		}
		a.store = store
		geocoder = geocode.NewCached(geocoder, store)
	}

	a.loop = loop.New(0)
	a.hub = web.NewHub()

	home := geo.Position{Lat: conf.Home.Lat, Lng: conf.Home.Lng}
	a.recorder = mapview.NewRecorder(home)
	a.relay = eventful.NewRelay(conf.Eventful.BaseURL, conf.Eventful.APIKey,
		eventful.WithCacheTTL(conf.Eventful.CacheTTL),
		eventful.WithClock(clk))

	a.session = finder.New(finder.Options{
		HomeLocation:    conf.Home.Location,
		Home:            home,
		Source:          eventful.NewClient(conf.RelayURL(), &http.Client{Timeout: time.Minute}),
		Geocoder:        geocoder,
		Surface:         mapview.NewBroadcaster(a.recorder, a.hub),
		Scheduler:       a.loop,
		Alerter:         a.hub,
		Clock:           clk,
		FetchTimeout:    conf.Timeouts.Fetch,
		InfoWindowDelay: conf.Timeouts.InfoWindowDelay,
		GeocodeTimeout:  conf.Timeouts.Geocode,
		Changed: func() {
			a.hub.PushState(a.session.Snapshot())
		},
	})

	srv := web.NewServer(conf, debug, web.Deps{
		Loop:     a.loop,
		Session:  a.session,
		Recorder: a.recorder,
		Relay:    a.relay,
		Hub:      a.hub,
		Clock:    clk,
	})
	a.server = &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// start runs the loop and the server, then the first search. The listener
// is already bound, so the session's request to the relay queues in the
// accept backlog instead of being refused.
func (a *app) start(ctx context.Context) (loopDone, serveErr <-chan error) {
	ld := make(chan error, 1)
	go func() { ld <- a.loop.Run(ctx) }()

	se := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+a.conf.Listen)
		if err := a.server.Serve(a.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			se <- err
		}
		close(se)
	}()

	a.loop.Post(func() { a.session.Start(ctx) })
	return ld, se
}

// startCron schedules cache purging and the nightly move of "today".
func (a *app) startCron() (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(a.clock.Now().Location()))
	if _, err := c.AddFunc(a.conf.Eventful.CachePurge, func() { a.purgeCaches(context.Background()) }); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(a.conf.Rollover, a.rollDate); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// purgeCaches drops expired relay bodies and old geocode rows.
func (a *app) purgeCaches(ctx context.Context) {
	if n := a.relay.PurgeExpired(); n > 0 {
		appLog.Debug("relay cache purged", "removed", n, "remaining", a.relay.CacheLen())
	}
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	n, err := a.store.PurgeBefore(ctx, a.clock.Now().Add(-geocodeCacheAge))
	if err != nil {
		appLog.Error("geocode cache purge failed", err)
		return
	}
	if n > 0 {
		appLog.Info("geocode cache purged", "removed", n)
	}
}

// rollDate asks the session to move to the current day.
func (a *app) rollDate() {
	today := a.clock.Now()
	a.loop.Post(func() { a.session.RollDate(today) })
}

// shutdown stops the server and waits for the loop, bounded by timeout.
func (a *app) shutdown(timeout time.Duration, loopDone <-chan error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		appLog.Warn("http shutdown incomplete", "err", err)
	}
	a.hub.Close()
	select {
	case <-loopDone:
	case <-ctx.Done():
		appLog.Warn("loop did not stop in time")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			appLog.Warn("geocode cache close failed", "err", err)
		}
	}
}
