package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"printshop/internal/audit"
	"printshop/internal/blob"
	"printshop/internal/cache"
	"printshop/internal/config"
	"printshop/internal/identity"
	"printshop/internal/lifecycle"
	"printshop/internal/middleware"
	"printshop/internal/models"
	"printshop/internal/pricing"
	"printshop/internal/revenue"
	"printshop/internal/store"
)

// Lifecycle is the slice of the engine the HTTP layer needs.
type Lifecycle interface {
	Submit(ctx context.Context, session *identity.Session, req lifecycle.SubmitRequest) (*models.Order, error)
	CompletePayment(ctx context.Context, session *identity.Session, orderID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, session *identity.Session, orderID string, target models.Status) (*models.Order, error)
	Delete(ctx context.Context, session *identity.Session, orderID string) error
}

// ShopDirectory covers the CRUD records outside the order core.
type ShopDirectory interface {
	GetServerStatus(ctx context.Context) (*models.ServerStatus, error)
	SetServerStatus(ctx context.Context, active bool) error
	GetInventory(ctx context.Context) (*models.Inventory, error)
	UpdateInventory(ctx context.Context, inv *models.Inventory) error
	ListStaff(ctx context.Context) ([]*models.Staff, error)
	CreateStaff(ctx context.Context, s *models.Staff) error
	UpdateStaff(ctx context.Context, s *models.Staff) error
	DeleteStaff(ctx context.Context, id string) error
}

type Server struct {
	engine    Lifecycle
	orders    *store.Store
	shop      ShopDirectory
	files     blob.Store
	urlCache  *cache.URLCache
	provider  identity.Provider
	auditPool *audit.Pool
	pricing   revenue.Pricing
	maxUpload int64
	addr      string
}

func NewServer(engine Lifecycle, orders *store.Store, shop ShopDirectory, files blob.Store,
	urlCache *cache.URLCache, provider identity.Provider, auditPool *audit.Pool, cfg *config.Config) *Server {
	return &Server{
		engine:    engine,
		orders:    orders,
		shop:      shop,
		files:     files,
		urlCache:  urlCache,
		provider:  provider,
		auditPool: auditPool,
		pricing:   revenue.Pricing{UnitRate: cfg.UnitRate, ExpenseRatio: cfg.ExpenseRatio},
		maxUpload: cfg.MaxUploadSize,
		addr:      cfg.Addr(),
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.handleWith(mux, "/orders", s.handleOrders, nil)
	s.handleWith(mux, "/orders/", s.handleOrderOne, nil)
	s.handleWith(mux, "/orders-pay/", s.handlePay, nil)
	s.handleWith(mux, "/orders-status/", s.handleUpdateStatus,
		[]identity.Role{identity.RoleXerox, identity.RoleAdmin})
	s.handleWith(mux, "/uploads", s.handleUpload, nil)
	s.handleWith(mux, "/revenue", s.handleRevenue,
		[]identity.Role{identity.RoleXerox, identity.RoleAdmin})
	s.handleWith(mux, "/inventory", s.handleInventory,
		[]identity.Role{identity.RoleXerox, identity.RoleAdmin})
	s.handleWith(mux, "/staff", s.handleStaff, []identity.Role{identity.RoleAdmin})
	s.handleWith(mux, "/staff/", s.handleStaffOne, []identity.Role{identity.RoleAdmin})
	s.handleWith(mux, "/server-status", s.handleServerStatus, nil)
}

func (s *Server) Run() error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	log.Printf("Server listen on %s...", s.addr)
	return http.ListenAndServe(s.addr, mux)
}

func (s *Server) handleWith(mux *http.ServeMux, path string, handlerFunc http.HandlerFunc, roles []identity.Role) {
	finalHandler := middleware.LogMiddleware(s.auditPool, "POST", "PUT", "DELETE")(
		middleware.AuthMiddleware(s.provider, roles...)(
			handlerFunc,
		),
	)
	mux.Handle(path, finalHandler)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitOrder(w, r)
	case http.MethodGet:
		s.handleListOrders(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type submitOrderRequest struct {
	Files         []models.FileRef `json:"files"`
	PaperSize     models.PaperSize `json:"paper_size"`
	Copies        int              `json:"copies"`
	IsColorPrint  bool             `json:"is_color_print"`
	IsDoubleSided bool             `json:"is_double_sided"`
	Notes         string           `json:"notes"`
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r.Context())
	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	order, err := s.engine.Submit(r.Context(), session, lifecycle.SubmitRequest{
		Files:         req.Files,
		PaperSize:     req.PaperSize,
		Copies:        req.Copies,
		IsColorPrint:  req.IsColorPrint,
		IsDoubleSided: req.IsDoubleSided,
		Notes:         req.Notes,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// handleListOrders serves from the order store snapshot. Students see only
// their own orders; staff see everything. view=active excludes terminal
// orders, view=history includes only them.
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r.Context())
	scope := ""
	if !session.Staff() {
		scope = session.UserID
	}

	if s.orders.Degraded() {
		w.Header().Set("X-Snapshot-Degraded", "true")
	}

	var orders []*models.Order
	switch r.URL.Query().Get("view") {
	case "active":
		orders = s.orders.Active(scope)
	case "history":
		orders = s.orders.History(scope)
	default:
		for _, o := range s.orders.Snapshot() {
			if scope == "" || o.UserID == scope {
				orders = append(orders, o)
			}
		}
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleOrderOne(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/orders/")
	if id == "" {
		http.Error(w, "missing ID", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleGetOrder(w, r, id)
	case http.MethodDelete:
		s.handleDeleteOrder(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request, id string) {
	session := middleware.SessionFrom(r.Context())
	order, ok := s.orders.Get(id)
	if !ok || (!session.Staff() && order.UserID != session.UserID) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request, id string) {
	session := middleware.SessionFrom(r.Context())
	if err := s.engine.Delete(r.Context(), session, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/orders-pay/")
	session := middleware.SessionFrom(r.Context())
	order, err := s.engine.CompletePayment(r.Context(), session, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/orders-status/")
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	session := middleware.SessionFrom(r.Context())
	order, err := s.engine.UpdateStatus(r.Context(), session, id, models.ParseStatus(req.Status))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// handleUpload receives one document, validates it locally, and hands the
// bytes to the blob store. The response carries the {name, url} pair the
// order submission references.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session := middleware.SessionFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := blob.Validate(header.Filename, header.Size, s.maxUpload); err != nil {
		s.writeError(w, err)
		return
	}

	path := fmt.Sprintf("%s/%s.pdf", session.UserID, uuid.NewString())
	url, err := s.files.Upload(r.Context(), path, file)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if signed, ok := s.urlCache.Get(r.Context(), path); ok {
		url = signed
	} else if signed, err := s.files.SignedURL(path, time.Hour); err == nil {
		s.urlCache.Set(r.Context(), path, signed)
		url = signed
	}

	writeJSON(w, http.StatusCreated, models.FileRef{Name: header.Filename, URL: url})
}

func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	buckets := revenue.Aggregate(s.orders.Snapshot(), s.pricing, time.Local)
	writeJSON(w, http.StatusOK, buckets)
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		inv, err := s.shop.GetInventory(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	case http.MethodPut:
		var inv models.Inventory
		if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
			http.Error(w, "bad JSON", http.StatusBadRequest)
			return
		}
		if err := s.shop.UpdateInventory(r.Context(), &inv); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStaff(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		staff, err := s.shop.ListStaff(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, staff)
	case http.MethodPost:
		var st models.Staff
		if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
			http.Error(w, "bad JSON", http.StatusBadRequest)
			return
		}
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		if st.Status == "" {
			st.Status = "active"
		}
		if err := s.shop.CreateStaff(r.Context(), &st); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, st)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStaffOne(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/staff/")
	if id == "" {
		http.Error(w, "missing ID", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var st models.Staff
		if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
			http.Error(w, "bad JSON", http.StatusBadRequest)
			return
		}
		st.ID = id
		if err := s.shop.UpdateStaff(r.Context(), &st); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	case http.MethodDelete:
		if err := s.shop.DeleteStaff(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		st, err := s.shop.GetServerStatus(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	case http.MethodPut:
		session := middleware.SessionFrom(r.Context())
		if session.Role != identity.RoleAdmin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var st models.ServerStatus
		if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
			http.Error(w, "bad JSON", http.StatusBadRequest)
			return
		}
		if err := s.shop.SetServerStatus(r.Context(), st.Active); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// writeError maps the engine and collaborator error taxonomy onto HTTP
// status codes. Raw collaborator errors never reach clients verbatim.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, lifecycle.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, lifecycle.ErrServerOffline):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, lifecycle.ErrNoFiles),
		errors.Is(err, pricing.ErrInvalidOptions),
		errors.Is(err, blob.ErrFileTooLarge),
		errors.Is(err, blob.ErrUnsupportedType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrFetch):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
