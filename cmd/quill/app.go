package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-go-golems/quill/pkg/config"
	"github.com/go-go-golems/quill/pkg/engine"
	"github.com/go-go-golems/quill/pkg/events"
	"github.com/go-go-golems/quill/pkg/metrics"
	"github.com/go-go-golems/quill/pkg/store"
	"github.com/go-go-golems/quill/pkg/stream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// app bundles everything a command needs to talk to the engine.
type app struct {
	cfg       *config.Config
	store     *store.Store
	client    stream.Client
	metrics   *metrics.Metrics
	router    *events.EventRouter
	publisher *events.PublisherManager
	engine    *engine.Engine
}

// newApp opens the store and builds the engine. The router is not running
// yet, so the events of the engine's startup are not delivered;
// runWithRouter announces the engine state once handlers are running.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	ret := &app{
		cfg:       cfg,
		metrics:   metrics.NewMetrics(),
		publisher: events.NewPublisherManager(),
	}

	var err error
	ret.client, err = cfg.Client()
	if err != nil {
		return nil, err
	}
	ret.store, err = cfg.OpenStore(ctx)
	if err != nil {
		return nil, err
	}

	ret.router, err = events.NewEventRouter(events.WithVerbose(cfg.Verbose))
	if err != nil {
		_ = ret.store.Close()
		return nil, err
	}
	ret.publisher.SubscribePublisher(events.TopicEngine, ret.router.Publisher)
	ret.router.AddEventHandler("log", logEvents)

	script, err := cfg.DialogueScript()
	if err != nil {
		_ = ret.Close()
		return nil, err
	}

	options := []engine.Option{
		engine.WithStore(ret.store),
		engine.WithMetrics(ret.metrics),
		engine.WithDefaults(cfg.EngineDefaults()),
		engine.WithPublisherManager(ret.publisher),
	}
	snapshot, err := ret.store.Load(ctx)
	if err != nil {
		// unreadable history is not fatal, start over
		log.Warn().Err(err).Msg("could not load conversations")
	} else {
		options = append(options, engine.WithConversations(snapshot.Conversations, snapshot.SelectedID))
	}

	ret.engine, err = engine.New(ctx, script, ret.client, options...)
	if err != nil {
		_ = ret.Close()
		return nil, err
	}

	return ret, nil
}

// runWithRouter runs the event router next to f and stops the router when f
// returns. The metrics endpoint is served for the same duration.
func (a *app) runWithRouter(ctx context.Context, f func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		return a.router.Run(ctx)
	})

	if a.cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              a.cfg.MetricsAddr,
			Handler:           a.metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		eg.Go(func() error {
			log.Info().Str("addr", a.cfg.MetricsAddr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	eg.Go(func() error {
		defer cancel()
		<-a.router.Running()
		a.engine.Announce()
		return f(ctx)
	})

	return eg.Wait()
}

func (a *app) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	return mux
}

func (a *app) Close() error {
	var err error
	if a.engine != nil {
		a.engine.Stop()
	}
	if a.router != nil {
		err = multierr.Append(err, a.router.Close())
	}
	if a.store != nil {
		err = multierr.Append(err, a.store.Close())
	}
	return err
}

// logEvents mirrors engine events into the debug log.
func logEvents(ctx context.Context, e *events.Event) error {
	log.Debug().Object("event", e).Msg("engine event")
	return nil
}
