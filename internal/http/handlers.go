package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/bike-rental/internal/availability"
	"github.com/example/bike-rental/internal/checkout"
	"github.com/example/bike-rental/internal/commit"
	"github.com/example/bike-rental/internal/config"
	"github.com/example/bike-rental/internal/dispatch"
	"github.com/example/bike-rental/internal/ingest"
	"github.com/example/bike-rental/internal/lock"
	"github.com/example/bike-rental/internal/models"
	"github.com/example/bike-rental/internal/observability"
	"github.com/example/bike-rental/internal/payments"
	"github.com/example/bike-rental/internal/planner"
	"github.com/example/bike-rental/internal/storage"
	"github.com/example/bike-rental/internal/throttle"
)

type Server struct {
	Calc     *availability.Calculator
	Checkout *checkout.Service
	Limiter  throttle.Limiter
	Producer *ingest.KafkaProducer
	WSReg    *dispatch.WSRegistry
	Snapshot *availability.Cache
	logger   *slog.Logger
	mux      *mux.Router
}

// NewServer wires the engine from config: Redis-backed locks and throttle
// plus Postgres stores when configured, in-memory fallbacks otherwise so
// the binary runs locally without external services.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	var fleetStore storage.FleetStore
	var bookingStore storage.BookingStore
	var mem *storage.MemoryStore
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		fleetStore, bookingStore = pg, pg
	} else {
		mem = storage.NewMemoryStore()
		seedDemoFleet(mem)
		fleetStore, bookingStore = mem, mem
	}

	var locks lock.Manager
	var limiter throttle.Limiter
	policies := throttle.DefaultPolicies()
	policies[models.CategoryBooking] = throttle.Policy{Window: cfg.BookingWindow, MaxAttempts: cfg.BookingMaxAttempts}
	if cfg.RedisAddr != "" {
		locks = lock.NewRedisManager(cfg.RedisAddr, cfg.RedisPassword)
		limiter = throttle.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, policies)
	} else {
		locks = lock.NewMemoryManager()
		limiter = throttle.NewMemoryLimiter(policies)
	}

	snapshot := availability.NewCache(cfg.SnapshotTTL)
	calc := &availability.Calculator{Fleet: fleetStore, Bookings: bookingStore, Snapshot: snapshot}
	plan := &planner.Planner{Calc: calc, Fleet: fleetStore}

	var committer checkout.Committer
	if cfg.CommitURL != "" {
		committer = commit.NewHTTPCommitter(cfg.CommitURL)
	} else if mem != nil {
		committer = &commit.StoreCommitter{Store: mem, Locks: locks}
	} else {
		return nil, errors.New("BOOKING_COMMIT_URL is required when PG_DSN is set")
	}

	var deposits checkout.Deposits
	if os.Getenv("STRIPE_API_KEY") != "" && cfg.DepositAmount > 0 {
		deposits = payments.NewStripeClient()
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	co := &checkout.Service{
		Planner:         plan,
		Locks:           locks,
		Committer:       committer,
		Deposits:        deposits,
		Logger:          logger,
		LockTTL:         cfg.LockTTL,
		DepositAmount:   cfg.DepositAmount,
		DepositCurrency: cfg.DepositCurrency,
	}

	s := &Server{
		Calc:     calc,
		Checkout: co,
		Limiter:  limiter,
		Producer: producer,
		WSReg:    dispatch.NewWSRegistry(logger),
		Snapshot: snapshot,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/availability", s.handleAvailability).Methods("GET")
	s.mux.HandleFunc("/api/v1/bookings", s.handleCreateBooking).Methods("POST")
	s.mux.HandleFunc("/internal/attempts/record", s.handleRecordAttempt).Methods("POST")
	s.mux.HandleFunc("/internal/attempts/check", s.handleCheckAttempt).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/availability", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	date, session, ok := slotParams(w, r)
	if !ok {
		return
	}
	bySize, err := s.Calc.BySize(r.Context(), date, session)
	if err != nil {
		http.Error(w, "availability lookup failed", http.StatusInternalServerError)
		return
	}
	booked, err := s.Calc.BookedCount(r.Context(), date, &session)
	if err != nil {
		http.Error(w, "availability lookup failed", http.StatusInternalServerError)
		return
	}
	remaining := 0
	for _, row := range bySize {
		remaining += row.Available
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":      date.Format("2006-01-02"),
		"session":   session,
		"remaining": remaining,
		"booked":    booked,
		"by_size":   bySize,
	})
}

type bookingRequest struct {
	SessionToken string  `json:"session_token"`
	CustomerID   string  `json:"customer_id"`
	Date         string  `json:"date"`
	Session      string  `json:"session"`
	Riders       []rider `json:"riders"`
}

type rider struct {
	ID     string  `json:"id"`
	Height float64 `json:"height"`
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	clientID := clientIdentifier(r)
	dec, err := s.Limiter.Check(r.Context(), clientID, models.CategoryBooking)
	if err != nil {
		s.logger.Error("throttle check failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !dec.Allowed {
		observability.ThrottleRejections.WithLabelValues(string(models.CategoryBooking)).Inc()
		writeThrottled(w, dec)
		return
	}

	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	session := models.Session(req.Session)
	if session != models.SessionMorning && session != models.SessionDaily {
		http.Error(w, "invalid session, want morning or daily", http.StatusBadRequest)
		return
	}
	if len(req.Riders) == 0 {
		http.Error(w, "at least one rider required", http.StatusBadRequest)
		return
	}
	token := req.SessionToken
	if token == "" {
		token = newID()
	}

	riders := make([]models.Rider, len(req.Riders))
	for i, rd := range req.Riders {
		riders[i] = models.Rider{ID: rd.ID, Height: rd.Height}
	}

	result, err := s.Checkout.Checkout(r.Context(), checkout.Request{
		SessionToken: token,
		CustomerID:   req.CustomerID,
		Date:         date,
		Session:      session,
		Riders:       riders,
	})
	s.recordAttempt(clientID, models.CategoryBooking, err)
	if err != nil {
		s.writeCheckoutError(w, err)
		return
	}

	s.Snapshot.Invalidate(date)
	s.broadcastAvailability(r, date, session)
	writeJSON(w, http.StatusCreated, map[string]any{
		"booking_id":    result.BookingID,
		"session_token": token,
		"assignments":   result.Assignments,
	})
}

// writeCheckoutError keeps the failure classes of the engine
// distinguishable at the API: "no bike fits you" and "someone else is
// booking" must never collapse into one generic error.
func (s *Server) writeCheckoutError(w http.ResponseWriter, err error) {
	var noSize *planner.NoMatchingSizeError
	switch {
	case errors.As(err, &noSize):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"code": "no_matching_size", "error": noSize.Error(),
		})
	case errors.Is(err, planner.ErrInsufficientInventory):
		writeJSON(w, http.StatusConflict, map[string]any{
			"code": "insufficient_inventory", "error": "no bikes available for this group on that date/session",
		})
	case errors.Is(err, checkout.ErrLockContention):
		writeJSON(w, http.StatusConflict, map[string]any{
			"code": "lock_contention", "error": "someone else is booking one of these bikes, please try again",
		})
	case errors.Is(err, checkout.ErrLockOwnershipLost):
		writeJSON(w, http.StatusConflict, map[string]any{
			"code": "lock_lost", "error": "your reservation hold expired, please try again",
		})
	default:
		s.logger.Error("checkout failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) recordAttempt(clientID string, category models.AttemptCategory, opErr error) {
	outcome := models.OutcomeSuccess
	if opErr != nil {
		outcome = models.OutcomeFailure
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Limiter.Record(ctx, clientID, category, outcome); err != nil {
		s.logger.Warn("failed to record attempt", "client_id", clientID, "error", err)
	}
	if s.Producer != nil {
		rec := models.AttemptRecord{ClientID: clientID, Category: category, Outcome: outcome, At: time.Now()}
		if err := s.Producer.PublishAttempt(rec); err != nil {
			s.logger.Warn("failed to publish attempt", "client_id", clientID, "error", err)
		}
	}
}

func (s *Server) broadcastAvailability(r *http.Request, date time.Time, session models.Session) {
	bySize, err := s.Calc.BySize(r.Context(), date, session)
	if err != nil {
		s.logger.Warn("availability broadcast skipped", "error", err)
		return
	}
	remaining := 0
	for _, row := range bySize {
		remaining += row.Available
	}
	s.WSReg.Broadcast(models.AvailabilityUpdate{
		Date:      date.Format("2006-01-02"),
		Session:   session,
		Remaining: remaining,
		BySize:    bySize,
	})
}

type attemptRequest struct {
	ClientID string `json:"client_id"`
	Category string `json:"category"`
	Outcome  string `json:"outcome"`
}

// handleRecordAttempt lets the external auth/coupon layers feed their
// attempt history into the shared throttle.
func (s *Server) handleRecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	category := models.AttemptCategory(req.Category)
	outcome := models.AttemptOutcome(req.Outcome)
	if req.ClientID == "" || category == "" {
		http.Error(w, "client_id and category required", http.StatusBadRequest)
		return
	}
	if outcome != models.OutcomeSuccess && outcome != models.OutcomeFailure {
		http.Error(w, "outcome must be success or failure", http.StatusBadRequest)
		return
	}
	if err := s.Limiter.Record(r.Context(), req.ClientID, category, outcome); err != nil {
		s.logger.Error("record attempt failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if s.Producer != nil {
		rec := models.AttemptRecord{ClientID: req.ClientID, Category: category, Outcome: outcome, At: time.Now()}
		if err := s.Producer.PublishAttempt(rec); err != nil {
			s.logger.Warn("failed to publish attempt", "client_id", req.ClientID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckAttempt(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	category := models.AttemptCategory(r.URL.Query().Get("category"))
	if clientID == "" || category == "" {
		http.Error(w, "client_id and category required", http.StatusBadRequest)
		return
	}
	dec, err := s.Limiter.Check(r.Context(), clientID, category)
	if err != nil {
		s.logger.Error("throttle check failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !dec.Allowed {
		observability.ThrottleRejections.WithLabelValues(string(category)).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed":             dec.Allowed,
		"attempts_remaining":  dec.Remaining,
		"retry_after_seconds": retrySeconds(dec),
	})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	sess := s.WSReg.Add(conn)
	go func() {
		// subscribers never send; the read loop just detects disconnects
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.WSReg.Remove(sess)
				return
			}
		}
	}()
}

func slotParams(w http.ResponseWriter, r *http.Request) (time.Time, models.Session, bool) {
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return time.Time{}, "", false
	}
	session := models.Session(r.URL.Query().Get("session"))
	if session != models.SessionMorning && session != models.SessionDaily {
		http.Error(w, "invalid session, want morning or daily", http.StatusBadRequest)
		return time.Time{}, "", false
	}
	return date, session, true
}

func writeThrottled(w http.ResponseWriter, dec throttle.Decision) {
	secs := retrySeconds(dec)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"code":                "rate_limited",
		"error":               "too many attempts, please wait",
		"attempts_remaining":  dec.Remaining,
		"retry_after_seconds": secs,
	})
}

func retrySeconds(dec throttle.Decision) int {
	if dec.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(dec.RetryAfter.Seconds()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// seedDemoFleet loads a small fleet and the standard height table so a
// bare local run has something to book.
func seedDemoFleet(m *storage.MemoryStore) {
	m.SetHeightRanges([]models.HeightRange{
		{Size: models.SizeXS, MinHeight: 140, MaxHeight: 155},
		{Size: models.SizeS, MinHeight: 155, MaxHeight: 165},
		{Size: models.SizeM, MinHeight: 165, MaxHeight: 175},
		{Size: models.SizeL, MinHeight: 175, MaxHeight: 185},
		{Size: models.SizeXL, MinHeight: 185, MaxHeight: 200},
	})
	id := 1
	for _, size := range models.SizeOrder {
		for i := 0; i < 3; i++ {
			m.UpsertBike(models.Bike{ID: id, Size: size, Status: models.BikeAvailable})
			id++
		}
	}
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
