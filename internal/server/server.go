package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/unrolled/secure"

	"github.com/simonvc/khata/internal/books"
	"github.com/simonvc/khata/internal/posting"
	"github.com/simonvc/khata/internal/recon"
	"github.com/simonvc/khata/internal/store"
)

type Options struct {
	Addr           string
	RequestTimeout time.Duration
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int
	Logger    *slog.Logger
}

type Server struct {
	store    *store.Store
	posting  *posting.Engine
	books    *books.Generator
	recon    *recon.Engine
	log      *slog.Logger
	validate *validator.Validate
	router   chi.Router
	addr     string
}

func New(st *store.Store, pe *posting.Engine, re *recon.Engine, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	s := &Server{
		store:    st,
		posting:  pe,
		books:    books.NewGenerator(st),
		recon:    re,
		log:      log,
		validate: validator.New(),
		router:   r,
		addr:     opts.Addr,
	}

	headers := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
	})

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(headers.Handler)
	if opts.RateLimit > 0 {
		r.Use(httprate.Limit(opts.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	r.Get("/healthz", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		// Account registry
		r.Get("/chart", s.getChart)
		r.Post("/accounts", s.createAccount)
		r.Get("/accounts", s.listAccounts)
		r.Get("/accounts/{code}", s.getAccount)
		r.Post("/accounts/{code}/deactivate", s.deactivateAccount)
		r.Post("/accounts/{code}/activate", s.activateAccount)

		// Vouchers
		r.Post("/journals", s.postJournal)
		r.Post("/journals/validate", s.validateJournal)
		r.Get("/journals", s.listJournals)
		r.Get("/journals/{id}", s.getJournal)
		r.Post("/journals/{id}/void", s.voidJournal)
		r.Post("/journals/{id}/reclassify", s.reclassifyJournal)
		r.Get("/templates", s.listTemplates)
		r.Post("/templates/{key}", s.postTemplate)

		// Numbering and periods
		r.Get("/vouchers", s.listCounters)
		r.Get("/vouchers/next", s.nextVoucher)
		r.Post("/vouchers/next", s.nextVoucher)
		r.Get("/years", s.listYears)
		r.Post("/years/{fy}/close", s.closeYear)

		// Derived books
		r.Get("/books/ledger/{code}", s.ledgerView)
		r.Get("/books/trial-balance", s.trialBalance)
		r.Get("/books/cash-book", s.cashBook)
		r.Get("/books/profit-loss", s.profitAndLoss)
		r.Get("/books/balance-sheet", s.balanceSheet)
		r.Post("/books/verify", s.verify)
		r.Post("/books/resume", s.resume)

		// Bank reconciliation
		r.Post("/bank/transactions", s.importBankTransactions)
		r.Post("/bank/statement", s.importStatement)
		r.Get("/bank/transactions", s.listBankTransactions)
		r.Post("/bank/reconcile", s.reconcilePending)
		r.Post("/bank/transactions/{id}/reconcile", s.reconcileOne)
		r.Post("/bank/transactions/{id}/match", s.matchManually)
		r.Get("/reconciliations", s.listReconciliations)

		r.Get("/audit", s.listAudit)
	})

	return s
}

func (s *Server) ListenAndServe() error {
	s.log.Info("khata server listening", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.router)
}

func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("khata server listening", "addr", ln.Addr().String())
	return http.Serve(ln, s.router)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
