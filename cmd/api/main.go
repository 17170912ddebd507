package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hakim/go-commerce/internal/cart"
	"github.com/hakim/go-commerce/internal/config"
	"github.com/hakim/go-commerce/internal/database"
	"github.com/hakim/go-commerce/internal/middleware"
	"github.com/hakim/go-commerce/internal/store"
)

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	return log
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Load config: %v", err)
	}

	log := newLogger(cfg.Log)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Info("Connected to database")

	products := store.NewProductStore(db)
	orders := store.NewOrderStore(db)
	logs := store.NewLogStore(db)

	a := &api{
		products:  products,
		customers: store.NewCustomerStore(db),
		orders:    orders,
		reports:   store.NewReportStore(db),
		logs:      logs,
		cart:      cart.NewService(products, orders),
		log:       log,
	}

	// The API routes get the full middleware chain; /metrics and
	// /healthz stay outside it so scrapes do not pile up logging rows.
	apiHandler := middleware.RequestLogging(logs, log)(middleware.Metrics(a.routes()))

	root := http.NewServeMux()
	root.Handle("/metrics", promhttp.Handler())
	root.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	root.Handle("/", apiHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.WithField("port", cfg.Server.Port).Info("Server starting")
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
