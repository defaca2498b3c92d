package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	marketplaceservice "tiof/contexts/token-trading/marketplace-service"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	httptransport "tiof/contexts/token-trading/marketplace-service/transport/http"
	"tiof/internal/platform/metrics"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "tiof/internal/platform/httpserver/docs"
)

const callerHeader = "X-Caller-Address"

type Server struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	addr        string
	marketplace marketplaceservice.Module
	stream      *EventStream
	recorder    *metrics.Recorder
	httpServer  *http.Server
}

// New builds the marketplace HTTP surface. stream and recorder are optional;
// without them the websocket feed and /metrics are not mounted.
func New(
	marketplace marketplaceservice.Module,
	stream *EventStream,
	recorder *metrics.Recorder,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:         http.NewServeMux(),
		logger:      logger,
		addr:        addr,
		marketplace: marketplace,
		stream:      stream,
		recorder:    recorder,
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.recorder != nil {
		s.mux.Handle("GET /metrics", s.recorder.Handler())
	}
	if s.stream != nil {
		s.mux.Handle("GET /v1/events/stream", s.stream)
	}

	s.route("GET /v1/administrator", s.handleGetAdministrator)
	s.route("PUT /v1/administrator", s.handleSetAdministrator)

	s.route("POST /v1/markets", s.handleRegisterMarket)
	s.route("GET /v1/markets", s.handleListMarkets)
	s.route("GET /v1/markets/{contract}", s.handleGetMarket)
	s.route("DELETE /v1/markets/{contract}", s.handleRemoveMarket)

	s.route("POST /v1/sales", s.handleSellAsset)
	s.route("GET /v1/sales", s.handleListSales)
	s.route("GET /v1/sales/{sale_id}", s.handleGetSale)
	s.route("POST /v1/sales/{sale_id}/buy", s.handleBuyAsset)
	s.route("DELETE /v1/sales/{sale_id}", s.handleCancelSale)
}

func (s *Server) route(pattern string, handler http.HandlerFunc) {
	if s.recorder == nil {
		s.mux.HandleFunc(pattern, handler)
		return
	}
	s.mux.Handle(pattern, s.recorder.InstrumentRoute(pattern, handler))
}

func (s *Server) handleGetAdministrator(w http.ResponseWriter, r *http.Request) {
	resp, err := s.marketplace.Handler.GetAdministratorHandler(r.Context())
	if err != nil {
		s.writeMarketplaceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetAdministrator(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req httptransport.SetAdministratorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.marketplace.Handler.SetAdministratorHandler(r.Context(), caller, req)
	if err != nil {
		s.writeMarketplaceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req httptransport.RegisterMarketRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.marketplace.Handler.RegisterMarketHandler(r.Context(), caller, req)
	if err != nil {
		s.writeMarketplaceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	resp, err := s.marketplace.Handler.ListMarketsHandler(r.Context())
	if err != nil {
		s.writeMarketplaceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	resp, err := s.marketplace.Handler.GetMarketHandler(r.Context(), r.PathValue("contract"))
	if err != nil {
		s.writeMarketplaceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemoveMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	resp, err := s.marketplace.Handler.RemoveMarketHandler(r.Context(), caller, r.PathValue("contract"))
	if err != nil {
		s.writeMarketplaceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSellAsset(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req httptransport.SellAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.marketplace.Handler.SellAssetHandler(r.Context(), caller, req)
	if err != nil {
		s.writeMarketplaceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := httptransport.ListSalesRequest{
		Contract: query.Get("contract"),
		Seller:   query.Get("seller"),
		Cursor:   query.Get("cursor"),
	}

	if limitRaw := query.Get("limit"); limitRaw != "" {
		limit, err := strconv.Atoi(limitRaw)
		if err != nil {
			writeMarketplaceError(w, http.StatusBadRequest, domainerrors.Code(domainerrors.ErrInvalidRequest), "limit must be an integer")
			return
		}
		req.Limit = limit
	}

	resp, err := s.marketplace.Handler.ListSalesHandler(r.Context(), req)
	if err != nil {
		s.writeMarketplaceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}

	resp, err := s.marketplace.Handler.GetSaleHandler(r.Context(), saleID)
	if err != nil {
		s.writeMarketplaceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBuyAsset(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}

	var req httptransport.BuyAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.marketplace.Handler.BuyAssetHandler(r.Context(), caller, saleID, req)
	if err != nil {
		s.writeMarketplaceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}

	resp, err := s.marketplace.Handler.CancelSaleHandler(r.Context(), caller, saleID)
	if err != nil {
		s.writeMarketplaceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := strings.TrimSpace(r.Header.Get(callerHeader))
	if caller == "" {
		writeMarketplaceError(w, http.StatusUnauthorized, "missing_caller", callerHeader+" header is required")
		return "", false
	}
	return caller, true
}

func parseSaleID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	saleID, err := strconv.ParseUint(r.PathValue("sale_id"), 10, 64)
	if err != nil {
		writeMarketplaceError(w, http.StatusBadRequest, domainerrors.Code(domainerrors.ErrInvalidRequest), "sale_id must be a positive integer")
		return 0, false
	}
	return saleID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeMarketplaceError(w, http.StatusBadRequest, domainerrors.Code(domainerrors.ErrInvalidRequest), "request body must be valid JSON")
		return false
	}
	return true
}

func (s *Server) writeMarketplaceDomainError(w http.ResponseWriter, err error) {
	code := domainerrors.Code(err)
	switch {
	case errors.Is(err, domainerrors.ErrNotAdmin),
		errors.Is(err, domainerrors.ErrNotAdminOrSeller):
		writeMarketplaceError(w, http.StatusForbidden, code, err.Error())
	case errors.Is(err, domainerrors.ErrMarketAlreadyExists),
		errors.Is(err, domainerrors.ErrSettlementConflict):
		writeMarketplaceError(w, http.StatusConflict, code, err.Error())
	case errors.Is(err, domainerrors.ErrMarketDoesNotExist),
		errors.Is(err, domainerrors.ErrSaleDoesNotExist):
		writeMarketplaceError(w, http.StatusNotFound, code, err.Error())
	case errors.Is(err, domainerrors.ErrPriceMismatch),
		errors.Is(err, domainerrors.ErrTransferRejected):
		writeMarketplaceError(w, http.StatusUnprocessableEntity, code, err.Error())
	case errors.Is(err, domainerrors.ErrInvalidRequest):
		writeMarketplaceError(w, http.StatusBadRequest, code, err.Error())
	default:
		s.logger.Error("marketplace request failed",
			"event", "http_marketplace_internal_error",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"error", err.Error(),
		)
		writeMarketplaceError(w, http.StatusInternalServerError, code, "internal server error")
	}
}

func writeMarketplaceError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, httptransport.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
