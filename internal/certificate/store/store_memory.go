package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"baseproof/internal/certificate/models"
	domain "baseproof/pkg/domain"
	"baseproof/pkg/platform/sentinel"
)

type issuerCounters struct {
	issued      uint64
	revoked     uint64
	transferred uint64
}

// MemoryStore keeps the whole registry behind one RWMutex. Every mutating
// method commits fully or returns with no effect; the mutex is the
// serialization boundary that totally orders mutations.
type MemoryStore struct {
	mu          sync.RWMutex
	nextID      domain.CertificateID
	certs       map[domain.CertificateID]*models.Certificate
	byHash      map[domain.Hash]domain.CertificateID
	byIssuer    map[domain.Address][]domain.CertificateID
	byOwner     map[domain.Address][]domain.CertificateID
	transfers   map[domain.CertificateID][]models.TransferRecord
	issuers     map[domain.Address]*issuerCounters
	platform    models.PlatformStats
	maxPageSize int
}

// NewMemoryStore creates an empty in-memory store. maxPageSize caps every
// list operation; non-positive falls back to 100.
func NewMemoryStore(maxPageSize int) *MemoryStore {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &MemoryStore{
		nextID:      1,
		certs:       make(map[domain.CertificateID]*models.Certificate),
		byHash:      make(map[domain.Hash]domain.CertificateID),
		byIssuer:    make(map[domain.Address][]domain.CertificateID),
		byOwner:     make(map[domain.Address][]domain.CertificateID),
		transfers:   make(map[domain.CertificateID][]models.TransferRecord),
		issuers:     make(map[domain.Address]*issuerCounters),
		maxPageSize: maxPageSize,
	}
}

func (s *MemoryStore) Create(_ context.Context, cert *models.Certificate) (domain.CertificateID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byHash[cert.DocumentHash]; taken {
		return 0, sentinel.ErrConflict
	}
	return s.insertLocked(cert), nil
}

func (s *MemoryStore) CreateBatch(_ context.Context, certs []*models.Certificate) ([]domain.CertificateID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// All-or-nothing: check every hash before touching state.
	seen := make(map[domain.Hash]bool, len(certs))
	for _, cert := range certs {
		if _, taken := s.byHash[cert.DocumentHash]; taken || seen[cert.DocumentHash] {
			return nil, sentinel.ErrConflict
		}
		seen[cert.DocumentHash] = true
	}

	ids := make([]domain.CertificateID, 0, len(certs))
	for _, cert := range certs {
		ids = append(ids, s.insertLocked(cert))
	}
	return ids, nil
}

// insertLocked allocates the next id, stores the record, and maintains every
// index and counter. Callers hold the write lock and have checked hash
// uniqueness.
func (s *MemoryStore) insertLocked(cert *models.Certificate) domain.CertificateID {
	stored := cert.Clone()
	stored.ID = s.nextID
	s.nextID++

	s.certs[stored.ID] = stored
	s.byHash[stored.DocumentHash] = stored.ID
	s.byIssuer[stored.Issuer] = append(s.byIssuer[stored.Issuer], stored.ID)
	s.byOwner[stored.Owner] = append(s.byOwner[stored.Owner], stored.ID)

	ic, known := s.issuers[stored.Issuer]
	if !known {
		ic = &issuerCounters{}
		s.issuers[stored.Issuer] = ic
		s.platform.TotalIssuers++
	}
	ic.issued++

	s.platform.TotalCertificates++
	if stored.IsPublic {
		s.platform.TotalPublic++
	} else {
		s.platform.TotalPrivate++
	}

	cert.ID = stored.ID
	return stored.ID
}

func (s *MemoryStore) FindByID(_ context.Context, id domain.CertificateID) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, ok := s.certs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cert.Clone(), nil
}

func (s *MemoryStore) FindByHash(_ context.Context, hash domain.Hash) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.certs[id].Clone(), nil
}

func (s *MemoryStore) Transfer(_ context.Context, id domain.CertificateID, rec models.TransferRecord, validate func(*models.Certificate) error) (*models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cert, ok := s.certs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(cert); err != nil {
		return nil, err
	}

	prevOwner := cert.Owner
	cert.ApplyTransfer(rec.To)
	s.transfers[id] = append(s.transfers[id], rec)

	owned := s.byOwner[prevOwner]
	if i := slices.Index(owned, id); i >= 0 {
		s.byOwner[prevOwner] = slices.Delete(owned, i, i+1)
	}
	s.byOwner[rec.To] = append(s.byOwner[rec.To], id)

	if ic, ok := s.issuers[cert.Issuer]; ok {
		ic.transferred++
	}

	return cert.Clone(), nil
}

func (s *MemoryStore) Revoke(_ context.Context, id domain.CertificateID, reasonRef string, at time.Time, validate func(*models.Certificate) error) (*models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cert, ok := s.certs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(cert); err != nil {
		return nil, err
	}

	cert.ApplyRevocation(reasonRef, at)

	s.platform.TotalRevoked++
	if cert.IsPublic {
		s.platform.TotalPublic--
	} else {
		s.platform.TotalPrivate--
	}
	if ic, ok := s.issuers[cert.Issuer]; ok {
		ic.revoked++
	}

	return cert.Clone(), nil
}

func (s *MemoryStore) Execute(_ context.Context, id domain.CertificateID, validate func(*models.Certificate) error, mutate func(*models.Certificate)) (*models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cert, ok := s.certs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(cert); err != nil {
		return nil, err
	}
	mutate(cert)
	return cert.Clone(), nil
}

func (s *MemoryStore) TransferHistory(_ context.Context, id domain.CertificateID) ([]models.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.certs[id]; !ok {
		return nil, sentinel.ErrNotFound
	}
	return slices.Clone(s.transfers[id]), nil
}

func (s *MemoryStore) ListByIssuer(_ context.Context, issuer domain.Address, offset, limit int) ([]domain.CertificateID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pageIDs(s.byIssuer[issuer], offset, s.clampLimit(limit)), nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, owner domain.Address, offset, limit int) ([]domain.CertificateID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := slices.Clone(s.byOwner[owner])
	slices.Sort(ids)
	return pageIDs(ids, offset, s.clampLimit(limit)), nil
}

func (s *MemoryStore) PlatformStats(_ context.Context) (models.PlatformStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.platform, nil
}

func (s *MemoryStore) IssuerStats(_ context.Context, issuer domain.Address) (models.IssuerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.IssuerStats{
		CertificateIDs: pageIDs(s.byIssuer[issuer], 0, s.maxPageSize),
	}
	if ic, ok := s.issuers[issuer]; ok {
		stats.TotalIssued = ic.issued
		stats.TotalRevoked = ic.revoked
		stats.TotalTransferred = ic.transferred
	}
	return stats, nil
}

func (s *MemoryStore) clampLimit(limit int) int {
	if limit <= 0 || limit > s.maxPageSize {
		return s.maxPageSize
	}
	return limit
}

func pageIDs(ids []domain.CertificateID, offset, limit int) []domain.CertificateID {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ids) {
		return []domain.CertificateID{}
	}
	end := min(offset+limit, len(ids))
	return slices.Clone(ids[offset:end])
}
