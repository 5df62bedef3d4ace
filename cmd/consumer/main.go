package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/bike-rental/internal/logging"
	"github.com/example/bike-rental/internal/models"
	"github.com/example/bike-rental/internal/storage"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_attempts_consumed_total",
		Help: "Total attempt records consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_attempts_invalid_total",
		Help: "Total invalid messages received",
	})
	archiveInserts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_archive_inserts_total",
		Help: "Total attempt records archived to postgres",
	})
	archiveErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_archive_errors_total",
		Help: "Total archive write errors",
	})
	prunedRows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_attempts_pruned_total",
		Help: "Total archived attempts removed by retention",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, archiveInserts, archiveErrors, prunedRows)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	logger := logging.NewLogger(os.Getenv("LOG_LEVEL"))

	brokers := []string{"localhost:9092"}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = brokers[:0]
		for _, b := range strings.Split(v, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	}
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "booking-attempts"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "attempt-archive"
	}

	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		logger.Error("PG_DSN is required")
		os.Exit(1)
	}
	store, err := storage.NewPostgresStore(dsn)
	if err != nil {
		logger.Error("postgres open failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	retention := 30 * 24 * time.Hour
	if v := os.Getenv("ATTEMPT_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			retention = d
		}
	}

	// metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	// the retention prune the archive depends on: expired rows are
	// deleted here, never on the request hot path
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.PruneAttemptsBefore(ctx, time.Now().Add(-retention))
				if err != nil {
					logger.Warn("retention prune failed", "error", err)
					continue
				}
				prunedRows.Add(float64(n))
				logger.Info("retention prune", "rows", n)
			}
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group})
	defer reader.Close()
	logger.Info("attempt archive consumer started", "brokers", brokers, "topic", topic)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("consumer stopped")
				return
			}
			logger.Warn("kafka read failed", "error", err)
			continue
		}
		msgsConsumed.Inc()

		var rec models.AttemptRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil || rec.ClientID == "" {
			msgsInvalid.Inc()
			continue
		}
		if rec.At.IsZero() {
			rec.At = msg.Time
		}
		if err := store.InsertAttempt(ctx, rec); err != nil {
			archiveErrors.Inc()
			logger.Warn("archive insert failed", "client_id", rec.ClientID, "error", err)
			continue
		}
		archiveInserts.Inc()
	}
}
