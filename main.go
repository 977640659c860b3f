// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/profiler"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/juntong/nextjsecom/cart"
	"github.com/juntong/nextjsecom/config"
	"github.com/juntong/nextjsecom/content"
	"github.com/juntong/nextjsecom/pagecache"
	"github.com/juntong/nextjsecom/richtext"
)

const (
	defaultCurrency = "USD"
	cookieMaxAge    = 60 * 60 * 48

	cookiePrefix    = "shop_"
	cookieSessionID = cookiePrefix + "session-id"
	cookieCurrency  = cookiePrefix + "currency"

	shutdownTimeout = 15 * time.Second
)

type ctxKeySessionID struct{}

type frontendServer struct {
	baseURL    string
	revalidate time.Duration

	catalog  catalog
	carts    *cart.Sessions
	pages    *pagecache.Cache
	richtext *richtext.Renderer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logrus.New()
	log.Level = logrus.DebugLevel
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout

	cfg, err := config.Load()
	if err != nil {
		log.WithField("error", err).Fatal("invalid configuration")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.Level = lvl
	} else {
		log.Warnf("unknown log level %q, keeping debug", cfg.LogLevel)
	}

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{}))

	if cfg.EnableTracing {
		log.Info("Tracing enabled.")
		tp := initTracing(log)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(sctx); err != nil {
				log.WithField("error", err).Warn("tracer provider shutdown failed")
			}
		}()
	} else {
		log.Info("Tracing disabled.")
	}

	if cfg.EnableProfiler {
		log.Info("Profiling enabled.")
		go initProfiling(log, "storefront", "1.0.0")
	} else {
		log.Info("Profiling disabled.")
	}

	contentClient := content.NewClient(content.Options{
		Endpoint:  cfg.ContentAPIURL,
		AssetBase: cfg.ContentAssetURL,
		HTTPClient: &http.Client{
			Timeout:   cfg.ContentTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Logger: log.WithField("component", "content"),
	})
	svc := newFrontendServer(cfg, contentClient, log)
	defer svc.pages.Close()

	if cfg.Prerender {
		svc.prerender(ctx, log)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr + ":" + cfg.Port,
		Handler:           svc.handler(log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.WithField("error", err).Warn("graceful shutdown failed")
		}
	}()

	log.Infof("starting server on %s:%s", cfg.ListenAddr, cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func newFrontendServer(cfg config.Config, c catalog, log logrus.FieldLogger) *frontendServer {
	svc := &frontendServer{
		baseURL:    cfg.BaseURL,
		revalidate: cfg.Revalidate,
		catalog:    c,
		carts:      cart.NewSessions(),
		richtext:   richtext.New(c.AssetURL),
	}
	svc.pages = pagecache.New(pagecache.Options{
		Generate:   svc.renderProductPage,
		Revalidate: cfg.Revalidate,
		Logger:     log.WithField("component", "pagecache"),
	})
	return svc
}

// prerender generates the pages of every listed product. When the listing
// fails, pages are generated on first request instead.
func (fe *frontendServer) prerender(ctx context.Context, log logrus.FieldLogger) {
	products, err := fe.getProducts(ctx)
	if err != nil {
		log.WithField("error", err).Warn("could not list products, pages will be generated on demand")
		return
	}
	paths := content.StaticPaths(products)
	start := time.Now()
	if err := fe.pages.Prerender(ctx, paths); err != nil {
		log.WithField("error", err).Warn("prerender incomplete")
		return
	}
	log.WithField("pages", len(paths)).WithField("took_ms", time.Since(start).Milliseconds()).Info("prerendered product pages")
}

func (fe *frontendServer) handler(log logrus.FieldLogger) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(fe.baseURL+"/", fe.homeHandler).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc(fe.baseURL+"/products/{slug}", fe.productHandler).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc(fe.baseURL+"/cart", fe.viewCartHandler).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc(fe.baseURL+"/cart", fe.addToCartHandler).Methods(http.MethodPost)
	r.HandleFunc(fe.baseURL+"/cart/empty", fe.emptyCartHandler).Methods(http.MethodPost)
	r.HandleFunc(fe.baseURL+"/setCurrency", fe.setCurrencyHandler).Methods(http.MethodPost)
	r.HandleFunc(fe.baseURL+"/api/products/{id}", fe.productJSONHandler).Methods(http.MethodGet)
	r.HandleFunc(fe.baseURL+"/api/cart", fe.cartJSONHandler).Methods(http.MethodGet)
	r.HandleFunc(fe.baseURL+"/api/revalidate", fe.revalidateHandler).Methods(http.MethodPost)
	r.PathPrefix(fe.baseURL + "/static/").Handler(http.StripPrefix(fe.baseURL+"/static/", http.FileServer(http.Dir("./static/"))))
	r.HandleFunc(fe.baseURL+"/robots.txt", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "User-agent: *\nDisallow: /cart\n") })
	r.HandleFunc(fe.baseURL+"/_healthz", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "ok") })

	var handler http.Handler = r
	handler = &logHandler{log: log, next: handler}       // add logging
	handler = ensureSessionID(handler)                   // add session ID
	handler = otelhttp.NewHandler(handler, "storefront") // add OTel tracing
	return handler
}

func initTracing(log logrus.FieldLogger) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	log.Info("Tracing provider initialized (no exporter configured)")
	return tp
}

func initProfiling(log logrus.FieldLogger, service, version string) {
	for i := 1; i <= 3; i++ {
		log = log.WithField("retry", i)
		if err := profiler.Start(profiler.Config{
			Service:        service,
			ServiceVersion: version,
			// ProjectID must be set if not running on GCP.
			// ProjectID: "my-project",
		}); err != nil {
			log.Warnf("warn: failed to start profiler: %+v", err)
		} else {
			log.Info("started Stackdriver profiler")
			return
		}
		d := time.Second * 10 * time.Duration(i)
		log.Debugf("sleeping %v to retry initializing Stackdriver profiler", d)
		time.Sleep(d)
	}
	log.Warn("warning: could not initialize Stackdriver profiler after retrying, giving up")
}
