package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/fredCredit/pkg/auth"
	"github.com/mcclellann/fredCredit/pkg/cache"
	"github.com/mcclellann/fredCredit/pkg/config"
	"github.com/mcclellann/fredCredit/pkg/ledger"
	"github.com/mcclellann/fredCredit/pkg/lock"
	"github.com/mcclellann/fredCredit/pkg/models"
	"github.com/mcclellann/fredCredit/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage
	log     logrus.FieldLogger
}

func NewServer(l *ledger.Ledger, s store.Storage, log logrus.FieldLogger) *Server {
	return &Server{
		ledger:  l,
		storage: s,
		log:     log,
	}
}

// Close releases the server's storage.
func (s *Server) Close() error {
	return s.storage.Close()
}

// NewRouter wires the API routes behind bearer authentication.
func NewRouter(s *Server, a *auth.Authenticator) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.Use(a.Middleware)

	api.HandleFunc("/customers", s.createCustomerHandler).Methods("POST")
	api.HandleFunc("/customers/{id}", s.getCustomerHandler).Methods("GET")
	api.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	api.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	api.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	api.HandleFunc("/loans/{id}/installments", s.listInstallmentsHandler).Methods("GET")
	api.HandleFunc("/loans/{id}/pay", s.payLoanHandler).Methods("POST")
	return router
}

type errorBody struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{
		Timestamp: time.Now(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   msg,
		Path:      r.URL.Path,
	})
}

// writeError translates a ledger error kind into an HTTP status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch ledger.KindOf(err) {
	case ledger.KindNotFound:
		s.fail(w, r, http.StatusNotFound, err.Error())
	case ledger.KindValidation, ledger.KindPaymentNotAllowed:
		s.fail(w, r, http.StatusBadRequest, err.Error())
	default:
		s.log.WithError(err).WithField("path", r.URL.Path).Error("Unhandled error")
		s.fail(w, r, http.StatusInternalServerError, "An unexpected error occurred.")
	}
}

func (s *Server) forbidden(w http.ResponseWriter, r *http.Request) {
	s.fail(w, r, http.StatusForbidden, "Access Denied: You do not have permission to perform this action.")
}

// scope limits customers to their own data; administrators see everything.
func scope(r *http.Request) ledger.Scope {
	p, _ := auth.FromContext(r.Context())
	if p.IsAdmin() {
		return ledger.Scope{}
	}
	return ledger.CustomerScope(p.CustomerID)
}

func isAdmin(r *http.Request) bool {
	p, _ := auth.FromContext(r.Context())
	return p.IsAdmin()
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		s.forbidden(w, r)
		return
	}
	var req struct {
		Name        string          `json:"name"`
		Surname     string          `json:"surname"`
		CreditLimit decimal.Decimal `json:"credit_limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	customer, err := s.ledger.CreateCustomer(r.Context(), req.Name, req.Surname, req.CreditLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "customer")
	if !ok {
		return
	}
	customer, err := s.ledger.GetCustomer(r.Context(), id, scope(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		s.forbidden(w, r)
		return
	}
	var req struct {
		CustomerID           uuid.UUID       `json:"customer_id"`
		Amount               decimal.Decimal `json:"amount"`
		InterestRate         decimal.Decimal `json:"interest_rate"`
		NumberOfInstallments int             `json:"number_of_installments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	loan, err := s.ledger.Originate(r.Context(), req.CustomerID, req.Amount, req.InterestRate, req.NumberOfInstallments)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	var filter models.LoanFilter
	q := r.URL.Query()

	if v := q.Get("customerId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.fail(w, r, http.StatusBadRequest, "Invalid customerId")
			return
		}
		filter.CustomerID = &id
	}
	if v := q.Get("numberOfInstallments"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.fail(w, r, http.StatusBadRequest, "Invalid numberOfInstallments")
			return
		}
		filter.InstallmentCount = &n
	}
	if v := q.Get("isPaid"); v != "" {
		paid, err := strconv.ParseBool(v)
		if err != nil {
			s.fail(w, r, http.StatusBadRequest, "Invalid isPaid")
			return
		}
		filter.Paid = &paid
	}

	sc := scope(r)
	if sc.CustomerID != nil && filter.CustomerID != nil && *filter.CustomerID != *sc.CustomerID {
		s.forbidden(w, r)
		return
	}

	loans, err := s.ledger.ListLoans(r.Context(), filter, sc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if loans == nil {
		loans = []*models.Loan{}
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "loan")
	if !ok {
		return
	}
	loan, err := s.ledger.GetLoan(r.Context(), id, scope(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listInstallmentsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "loan")
	if !ok {
		return
	}
	installments, err := s.ledger.ListInstallments(r.Context(), id, scope(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, installments)
}

func (s *Server) payLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "loan")
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.ledger.AllocatePayment(r.Context(), id, req.Amount, scope(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// sweepOverdue logs every unpaid loan that has installments past due.
func (s *Server) sweepOverdue() {
	report, err := s.ledger.Overdue(context.Background())
	if err != nil {
		s.log.WithError(err).Error("Overdue sweep failed")
		return
	}
	for _, o := range report {
		s.log.WithFields(logrus.Fields{
			"loan_id":      o.LoanID,
			"customer_id":  o.CustomerID,
			"installments": o.Installments,
			"nominal":      o.Nominal.StringFixed(2),
			"oldest_due":   o.OldestDue.Format(time.DateOnly),
		}).Warn("Loan has overdue installments")
	}
	s.log.WithField("loans", len(report)).Info("Overdue sweep complete")
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	sqlStore, err := store.NewSQLStore(cfg.DBDriver, cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to initialize store: %v", err)
	}
	logger.Infof("Database connection established (%s)", cfg.DBDriver)

	opts := []ledger.Option{ledger.WithLogger(logger)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		opts = append(opts,
			ledger.WithCache(cache.NewRedisCache(rdb, cfg.CacheTTL)),
			ledger.WithLocker(lock.NewRedis(rdb)),
		)
		logger.Infof("Redis cache and locks enabled at %s", cfg.RedisAddr)
	}

	server := NewServer(ledger.NewLedger(sqlStore, opts...), sqlStore, logger)
	defer func() {
		if err := server.Close(); err != nil {
			logger.Errorf("Failed to close store: %v", err)
		}
	}()
	router := NewRouter(server, auth.NewAuthenticator(cfg.JWTSecret))

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.SweepSchedule, server.sweepOverdue); err != nil {
		logger.Fatalf("Invalid SWEEP_SCHEDULE %q: %v", cfg.SweepSchedule, err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		logger.Errorf("Server failed: %v", err)
	case sig := <-stop:
		logger.Infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}
}
