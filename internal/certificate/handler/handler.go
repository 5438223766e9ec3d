// Package handler exposes the certificate registry over HTTP. Handlers
// decode and validate the wire shapes, delegate to the service, and map
// coded errors onto the shared error envelope.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"baseproof/internal/certificate/models"
	"baseproof/internal/certificate/service"
	domain "baseproof/pkg/domain"
	dErrors "baseproof/pkg/domain-errors"
)

// Handler serves the /v1 certificate routes.
type Handler struct {
	service *service.Service
	logger  *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Routes mounts the registry API. Mutations require authentication; reads
// run with optional auth so anonymous callers get the redacted view instead
// of a 401.
func (h *Handler) Routes(requireAuth, optionalAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/certificates", h.Certify)
		r.Post("/certificates/bulk", h.CertifyBulk)
		r.Post("/certificates/{id}/transfer", h.Transfer)
		r.Post("/certificates/{id}/revoke", h.Revoke)
		r.Post("/certificates/{id}/co-certifiers", h.AddCoCertifier)
		r.Post("/certificates/{id}/co-certifiers/accept", h.AcceptCoCertification)
		r.Post("/certificates/{id}/renew", h.Renew)
	})

	r.Group(func(r chi.Router) {
		r.Use(optionalAuth)
		r.Get("/certificates/{id}", h.Get)
		r.Get("/certificates/{id}/history", h.TransferHistory)
		r.Get("/verify/{hash}", h.Verify)
		r.Get("/issuers/{address}/certificates", h.ListByIssuer)
		r.Get("/owners/{address}/certificates", h.ListByOwner)
		r.Get("/stats/platform", h.PlatformStats)
		r.Get("/stats/issuers/{address}", h.IssuerStats)
	})

	return r
}

// certifyItem is the wire shape of one issuance. Category travels as its
// stable wire number; expires_at is unix seconds with zero meaning never.
type certifyItem struct {
	DocumentHash     string   `json:"document_hash"`
	Title            string   `json:"title"`
	Category         uint8    `json:"category"`
	DescriptionRef   string   `json:"description_ref,omitempty"`
	MetadataRef      string   `json:"metadata_ref,omitempty"`
	IsPublic         bool     `json:"is_public"`
	CoCertifiers     []string `json:"co_certifiers,omitempty"`
	ExpiresAt        int64    `json:"expires_at,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	OriginalFilename string   `json:"original_filename,omitempty"`
	FileExtension    string   `json:"file_extension,omitempty"`
}

func (item certifyItem) toInput() (models.NewInput, error) {
	hash, err := domain.ParseHash(item.DocumentHash)
	if err != nil {
		return models.NewInput{}, err
	}
	category, err := domain.ParseCategory(item.Category)
	if err != nil {
		return models.NewInput{}, err
	}
	in := models.NewInput{
		DocumentHash:     hash,
		Title:            item.Title,
		Category:         category,
		DescriptionRef:   item.DescriptionRef,
		MetadataRef:      item.MetadataRef,
		IsPublic:         item.IsPublic,
		Tags:             item.Tags,
		OriginalFilename: item.OriginalFilename,
		FileExtension:    item.FileExtension,
	}
	if item.ExpiresAt > 0 {
		in.ExpiresAt = time.Unix(item.ExpiresAt, 0).UTC()
	}
	for _, raw := range item.CoCertifiers {
		addr, err := domain.ParseAddress(raw)
		if err != nil {
			return models.NewInput{}, err
		}
		in.CoCertifiers = append(in.CoCertifiers, addr)
	}
	return in, nil
}

type certifyRequest struct {
	certifyItem
	Payment domain.Amount `json:"payment"`
}

func (h *Handler) Certify(w http.ResponseWriter, r *http.Request) {
	var req certifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "malformed JSON body"))
		return
	}
	in, err := req.toInput()
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	cert, err := h.service.Certify(r.Context(), service.CertifyInput{NewInput: in, Payment: req.Payment})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, h.logger, http.StatusCreated, cert)
}

type bulkRequest struct {
	Items   []certifyItem `json:"items"`
	Payment domain.Amount `json:"payment"`
}

type bulkResponse struct {
	CertificateIDs []domain.CertificateID `json:"certificate_ids"`
	Count          int                    `json:"count"`
}

func (h *Handler) CertifyBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "malformed JSON body"))
		return
	}

	items := make([]models.NewInput, 0, len(req.Items))
	for _, item := range req.Items {
		in, err := item.toInput()
		if err != nil {
			WriteError(w, r, h.logger, err)
			return
		}
		items = append(items, in)
	}

	ids, err := h.service.CertifyBulk(r.Context(), service.BulkInput{Items: items, Payment: req.Payment})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, h.logger, http.StatusCreated, bulkResponse{CertificateIDs: ids, Count: len(ids)})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	cert, err := h.service.Get(r.Context(), id)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, h.logger, http.StatusOK, cert)
}

type transferRequest struct {
	NewOwner string        `json:"new_owner"`
	Payment  domain.Amount `json:"payment"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "malformed JSON body"))
		return
	}
	newOwner, err := domain.ParseAddress(req.NewOwner)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	cert, err := h.service.Transfer(r.Context(), id, newOwner, req.Payment)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, h.logger, http.StatusOK, cert)
}

type revokeRequest struct {
	ReasonRef string `json:"reason_ref"`
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "malformed JSON body"))
		return
	}

	cert, err := h.service.Revoke(r.Context(), id, req.ReasonRef)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, h.logger, http.StatusOK, cert)
}

type addCoCertifierRequest struct {
	Address string `json:"address"`
}

func (h *Handler) AddCoCertifier(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	var req addCoCertifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "malformed JSON body"))
		return
	}
	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	cert, err := h.service.AddCoCertifier(r.Context(), id, addr)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, h.logger, http.StatusOK, cert)
}

func (h *Handler) AcceptCoCertification(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	cert, err := h.service.AcceptCoCertification(r.Context(), id)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, h.logger, http.StatusOK, cert)
}

type renewRequest struct {
	ExpiresAt int64         `json:"expires_at"`
	Payment   domain.Amount `json:"payment"`
}

func (h *Handler) Renew(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	var req renewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "malformed JSON body"))
		return
	}
	if req.ExpiresAt <= 0 {
		WriteError(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "expires_at must be a future unix timestamp"))
		return
	}

	cert, err := h.service.Renew(r.Context(), id, time.Unix(req.ExpiresAt, 0).UTC(), req.Payment)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, h.logger, http.StatusOK, cert)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	hash, err := domain.ParseHash(chi.URLParam(r, "hash"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	result, err := h.service.Verify(r.Context(), hash)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, h.logger, http.StatusOK, result)
}

type historyResponse struct {
	Transfers []models.TransferRecord `json:"transfers"`
}

func (h *Handler) TransferHistory(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	history, err := h.service.TransferHistory(r.Context(), id)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	if history == nil {
		history = []models.TransferRecord{}
	}
	WriteJSON(w, h.logger, http.StatusOK, historyResponse{Transfers: history})
}

type listResponse struct {
	CertificateIDs []domain.CertificateID `json:"certificate_ids"`
	Offset         int                    `json:"offset"`
	Limit          int                    `json:"limit"`
}

func (h *Handler) ListByIssuer(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListByIssuer)
}

func (h *Handler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListByOwner)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, query func(ctx context.Context, addr domain.Address, offset, limit int) ([]domain.CertificateID, error)) {
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 0)

	ids, err := query(r.Context(), addr, offset, limit)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, h.logger, http.StatusOK, listResponse{CertificateIDs: ids, Offset: offset, Limit: limit})
}

func (h *Handler) PlatformStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.PlatformStats(r.Context())
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, h.logger, http.StatusOK, stats)
}

func (h *Handler) IssuerStats(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	stats, err := h.service.IssuerStats(r.Context(), addr)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, h.logger, http.StatusOK, stats)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
