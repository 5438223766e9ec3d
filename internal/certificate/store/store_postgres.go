package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lib/pq"

	"baseproof/internal/certificate/models"
	domain "baseproof/pkg/domain"
	"baseproof/pkg/platform/sentinel"
	txcontext "baseproof/pkg/platform/tx"
)

// PostgresStore persists the registry in PostgreSQL. Every mutating method
// runs in one transaction and locks the certificate row with FOR UPDATE
// across validate and mutate, matching the port's atomicity contract.
type PostgresStore struct {
	db          *sql.DB
	maxPageSize int
}

// NewPostgres creates a PostgreSQL-backed store.
func NewPostgres(db *sql.DB, maxPageSize int) *PostgresStore {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &PostgresStore{db: db, maxPageSize: maxPageSize}
}

const schema = `
CREATE TABLE IF NOT EXISTS certificates (
	id                    BIGSERIAL PRIMARY KEY,
	document_hash         BYTEA NOT NULL UNIQUE,
	issuer                BYTEA NOT NULL,
	owner                 BYTEA NOT NULL,
	title                 TEXT NOT NULL,
	category              SMALLINT NOT NULL,
	description_ref       TEXT NOT NULL DEFAULT '',
	metadata_ref          TEXT NOT NULL DEFAULT '',
	is_public             BOOLEAN NOT NULL,
	tags                  TEXT[] NOT NULL DEFAULT '{}',
	original_filename     TEXT NOT NULL DEFAULT '',
	file_extension        TEXT NOT NULL DEFAULT '',
	certified_at          TIMESTAMPTZ NOT NULL,
	expires_at            TIMESTAMPTZ,
	renewal_count         INTEGER NOT NULL DEFAULT 0,
	is_revoked            BOOLEAN NOT NULL DEFAULT FALSE,
	revocation_reason_ref TEXT NOT NULL DEFAULT '',
	revoked_at            TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS certificates_issuer_idx ON certificates (issuer, id);
CREATE INDEX IF NOT EXISTS certificates_owner_idx ON certificates (owner, id);

CREATE TABLE IF NOT EXISTS co_certifiers (
	certificate_id BIGINT NOT NULL REFERENCES certificates (id),
	address        BYTEA NOT NULL,
	accepted       BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (certificate_id, address)
);

CREATE TABLE IF NOT EXISTS transfers (
	seq            BIGSERIAL PRIMARY KEY,
	certificate_id BIGINT NOT NULL REFERENCES certificates (id),
	from_addr      BYTEA NOT NULL,
	to_addr        BYTEA NOT NULL,
	transferred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transfers_certificate_idx ON transfers (certificate_id, seq);

CREATE TABLE IF NOT EXISTS issuer_stats (
	issuer      BYTEA PRIMARY KEY,
	issued      BIGINT NOT NULL DEFAULT 0,
	revoked     BIGINT NOT NULL DEFAULT 0,
	transferred BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS platform_stats (
	id                 SMALLINT PRIMARY KEY CHECK (id = 1),
	total_certificates BIGINT NOT NULL DEFAULT 0,
	total_issuers      BIGINT NOT NULL DEFAULT 0,
	total_revoked      BIGINT NOT NULL DEFAULT 0,
	total_public       BIGINT NOT NULL DEFAULT 0,
	total_private      BIGINT NOT NULL DEFAULT 0
);
INSERT INTO platform_stats (id) VALUES (1) ON CONFLICT DO NOTHING;
`

// Migrate creates the schema. Idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate registry schema: %w", err)
	}
	return nil
}

// withTx runs fn inside the context transaction if one is present, otherwise
// inside a new transaction committed on success.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Create(ctx context.Context, cert *models.Certificate) (domain.CertificateID, error) {
	var id domain.CertificateID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = s.insertTx(ctx, tx, cert)
		return err
	})
	if err != nil {
		return 0, err
	}
	cert.ID = id
	return id, nil
}

func (s *PostgresStore) CreateBatch(ctx context.Context, certs []*models.Certificate) ([]domain.CertificateID, error) {
	ids := make([]domain.CertificateID, 0, len(certs))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, cert := range certs {
			id, err := s.insertTx(ctx, tx, cert)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, cert := range certs {
		cert.ID = ids[i]
	}
	return ids, nil
}

// insertTx stores one certificate and maintains issuer and platform counters
// in the same transaction.
func (s *PostgresStore) insertTx(ctx context.Context, tx *sql.Tx, cert *models.Certificate) (domain.CertificateID, error) {
	var id domain.CertificateID
	err := tx.QueryRowContext(ctx, `
		INSERT INTO certificates (
			document_hash, issuer, owner, title, category,
			description_ref, metadata_ref, is_public, tags,
			original_filename, file_extension, certified_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (document_hash) DO NOTHING
		RETURNING id`,
		cert.DocumentHash[:], cert.Issuer[:], cert.Owner[:], cert.Title, cert.Category,
		cert.DescriptionRef, cert.MetadataRef, cert.IsPublic, pq.Array(cert.Tags),
		cert.OriginalFilename, cert.FileExtension, cert.CertifiedAt, nullTime(cert.ExpiresAt),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("insert certificate: %w", err)
	}

	for _, cc := range cert.PendingCoCertifiers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO co_certifiers (certificate_id, address, accepted)
			VALUES ($1, $2, FALSE)`, id, cc[:]); err != nil {
			return 0, fmt.Errorf("insert pending co-certifier: %w", err)
		}
	}

	// (xmax = 0) is true only for a freshly inserted row, which is the
	// first-time-issuer signal for the distinct-issuer counter.
	var firstTime bool
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO issuer_stats (issuer, issued) VALUES ($1, 1)
		ON CONFLICT (issuer) DO UPDATE SET issued = issuer_stats.issued + 1
		RETURNING (xmax = 0)`, cert.Issuer[:]).Scan(&firstTime); err != nil {
		return 0, fmt.Errorf("update issuer stats: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE platform_stats SET
			total_certificates = total_certificates + 1,
			total_issuers = total_issuers + CASE WHEN $1 THEN 1 ELSE 0 END,
			total_public = total_public + CASE WHEN $2 THEN 1 ELSE 0 END,
			total_private = total_private + CASE WHEN $2 THEN 0 ELSE 1 END
		WHERE id = 1`, firstTime, cert.IsPublic); err != nil {
		return 0, fmt.Errorf("update platform stats: %w", err)
	}

	return id, nil
}

const certColumns = `
	id, document_hash, issuer, owner, title, category,
	description_ref, metadata_ref, is_public, tags,
	original_filename, file_extension, certified_at, expires_at,
	renewal_count, is_revoked, revocation_reason_ref, revoked_at`

func (s *PostgresStore) FindByID(ctx context.Context, id domain.CertificateID) (*models.Certificate, error) {
	return s.findBy(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) FindByHash(ctx context.Context, hash domain.Hash) (*models.Certificate, error) {
	return s.findBy(ctx, `WHERE document_hash = $1`, hash[:])
}

func (s *PostgresStore) findBy(ctx context.Context, where string, arg any) (*models.Certificate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+certColumns+` FROM certificates `+where, arg)
	cert, err := scanCertificate(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadCoCertifiers(ctx, s.db, cert); err != nil {
		return nil, err
	}
	return cert, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*models.Certificate, error) {
	var (
		cert      models.Certificate
		hash      []byte
		issuer    []byte
		owner     []byte
		tags      pq.StringArray
		expiresAt sql.NullTime
		revokedAt sql.NullTime
	)
	err := row.Scan(
		&cert.ID, &hash, &issuer, &owner, &cert.Title, &cert.Category,
		&cert.DescriptionRef, &cert.MetadataRef, &cert.IsPublic, &tags,
		&cert.OriginalFilename, &cert.FileExtension, &cert.CertifiedAt, &expiresAt,
		&cert.RenewalCount, &cert.IsRevoked, &cert.RevocationReasonRef, &revokedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan certificate: %w", err)
	}
	copy(cert.DocumentHash[:], hash)
	copy(cert.Issuer[:], issuer)
	copy(cert.Owner[:], owner)
	cert.Tags = tags
	if expiresAt.Valid {
		cert.ExpiresAt = expiresAt.Time
	}
	if revokedAt.Valid {
		cert.RevokedAt = revokedAt.Time
	}
	return &cert, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) loadCoCertifiers(ctx context.Context, q queryer, cert *models.Certificate) error {
	rows, err := q.QueryContext(ctx, `
		SELECT address, accepted FROM co_certifiers
		WHERE certificate_id = $1 ORDER BY address`, cert.ID)
	if err != nil {
		return fmt.Errorf("load co-certifiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			raw      []byte
			accepted bool
		)
		if err := rows.Scan(&raw, &accepted); err != nil {
			return fmt.Errorf("scan co-certifier: %w", err)
		}
		var addr domain.Address
		copy(addr[:], raw)
		if accepted {
			cert.CoCertifiers = append(cert.CoCertifiers, addr)
		} else {
			cert.PendingCoCertifiers = append(cert.PendingCoCertifiers, addr)
		}
	}
	return rows.Err()
}

// lockCertificate loads the certificate with FOR UPDATE so the validate
// callback observes exactly the state the mutation will apply to.
func (s *PostgresStore) lockCertificate(ctx context.Context, tx *sql.Tx, id domain.CertificateID) (*models.Certificate, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+certColumns+` FROM certificates WHERE id = $1 FOR UPDATE`, id)
	cert, err := scanCertificate(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadCoCertifiers(ctx, tx, cert); err != nil {
		return nil, err
	}
	return cert, nil
}

func (s *PostgresStore) Transfer(ctx context.Context, id domain.CertificateID, rec models.TransferRecord, validate func(*models.Certificate) error) (*models.Certificate, error) {
	var result *models.Certificate
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cert, err := s.lockCertificate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := validate(cert); err != nil {
			return err
		}

		cert.ApplyTransfer(rec.To)
		if _, err := tx.ExecContext(ctx, `UPDATE certificates SET owner = $1 WHERE id = $2`, rec.To[:], id); err != nil {
			return fmt.Errorf("update owner: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transfers (certificate_id, from_addr, to_addr, transferred_at)
			VALUES ($1, $2, $3, $4)`, id, rec.From[:], rec.To[:], rec.At); err != nil {
			return fmt.Errorf("insert transfer record: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE issuer_stats SET transferred = transferred + 1 WHERE issuer = $1`, cert.Issuer[:]); err != nil {
			return fmt.Errorf("update issuer stats: %w", err)
		}
		result = cert
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, id domain.CertificateID, reasonRef string, at time.Time, validate func(*models.Certificate) error) (*models.Certificate, error) {
	var result *models.Certificate
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cert, err := s.lockCertificate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := validate(cert); err != nil {
			return err
		}

		cert.ApplyRevocation(reasonRef, at)
		if _, err := tx.ExecContext(ctx, `
			UPDATE certificates SET is_revoked = TRUE, revocation_reason_ref = $1, revoked_at = $2
			WHERE id = $3`, reasonRef, at, id); err != nil {
			return fmt.Errorf("update revocation: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE platform_stats SET
				total_revoked = total_revoked + 1,
				total_public = total_public - CASE WHEN $1 THEN 1 ELSE 0 END,
				total_private = total_private - CASE WHEN $1 THEN 0 ELSE 1 END
			WHERE id = 1`, cert.IsPublic); err != nil {
			return fmt.Errorf("update platform stats: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE issuer_stats SET revoked = revoked + 1 WHERE issuer = $1`, cert.Issuer[:]); err != nil {
			return fmt.Errorf("update issuer stats: %w", err)
		}
		result = cert
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) Execute(ctx context.Context, id domain.CertificateID, validate func(*models.Certificate) error, mutate func(*models.Certificate)) (*models.Certificate, error) {
	var result *models.Certificate
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		before, err := s.lockCertificate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := validate(before); err != nil {
			return err
		}

		after := before.Clone()
		mutate(after)

		if err := s.persistMutation(ctx, tx, before, after); err != nil {
			return err
		}
		result = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// persistMutation writes back the fields Execute mutations may touch:
// co-certifier set membership, expiration, renewal counter.
func (s *PostgresStore) persistMutation(ctx context.Context, tx *sql.Tx, before, after *models.Certificate) error {
	if after.RenewalCount != before.RenewalCount || !after.ExpiresAt.Equal(before.ExpiresAt) {
		if _, err := tx.ExecContext(ctx, `
			UPDATE certificates SET expires_at = $1, renewal_count = $2 WHERE id = $3`,
			nullTime(after.ExpiresAt), after.RenewalCount, after.ID); err != nil {
			return fmt.Errorf("update renewal: %w", err)
		}
	}

	for _, cc := range after.CoCertifiers {
		if !slices.Contains(before.CoCertifiers, cc) {
			if _, err := tx.ExecContext(ctx, `
				UPDATE co_certifiers SET accepted = TRUE
				WHERE certificate_id = $1 AND address = $2`, after.ID, cc[:]); err != nil {
				return fmt.Errorf("accept co-certifier: %w", err)
			}
		}
	}
	for _, cc := range after.PendingCoCertifiers {
		if !slices.Contains(before.PendingCoCertifiers, cc) {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO co_certifiers (certificate_id, address, accepted)
				VALUES ($1, $2, FALSE)`, after.ID, cc[:]); err != nil {
				return fmt.Errorf("insert pending co-certifier: %w", err)
			}
		}
	}
	return nil
}

func (s *PostgresStore) TransferHistory(ctx context.Context, id domain.CertificateID) ([]models.TransferRecord, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM certificates WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check certificate: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT from_addr, to_addr, transferred_at FROM transfers
		WHERE certificate_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load transfer history: %w", err)
	}
	defer rows.Close()

	history := []models.TransferRecord{}
	for rows.Next() {
		var (
			rec      models.TransferRecord
			from, to []byte
		)
		if err := rows.Scan(&from, &to, &rec.At); err != nil {
			return nil, fmt.Errorf("scan transfer record: %w", err)
		}
		copy(rec.From[:], from)
		copy(rec.To[:], to)
		history = append(history, rec)
	}
	return history, rows.Err()
}

func (s *PostgresStore) ListByIssuer(ctx context.Context, issuer domain.Address, offset, limit int) ([]domain.CertificateID, error) {
	return s.listIDs(ctx, `issuer`, issuer, offset, limit)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner domain.Address, offset, limit int) ([]domain.CertificateID, error) {
	return s.listIDs(ctx, `owner`, owner, offset, limit)
}

func (s *PostgresStore) listIDs(ctx context.Context, column string, addr domain.Address, offset, limit int) ([]domain.CertificateID, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM certificates WHERE `+column+` = $1
		ORDER BY id OFFSET $2 LIMIT $3`, addr[:], offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list certificates by %s: %w", column, err)
	}
	defer rows.Close()

	ids := []domain.CertificateID{}
	for rows.Next() {
		var id domain.CertificateID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan certificate id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) PlatformStats(ctx context.Context) (models.PlatformStats, error) {
	var stats models.PlatformStats
	err := s.db.QueryRowContext(ctx, `
		SELECT total_certificates, total_issuers, total_revoked, total_public, total_private
		FROM platform_stats WHERE id = 1`).Scan(
		&stats.TotalCertificates, &stats.TotalIssuers, &stats.TotalRevoked,
		&stats.TotalPublic, &stats.TotalPrivate,
	)
	if err != nil {
		return models.PlatformStats{}, fmt.Errorf("load platform stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) IssuerStats(ctx context.Context, issuer domain.Address) (models.IssuerStats, error) {
	stats := models.IssuerStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT issued, revoked, transferred FROM issuer_stats WHERE issuer = $1`, issuer[:]).Scan(
		&stats.TotalIssued, &stats.TotalRevoked, &stats.TotalTransferred,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.IssuerStats{}, fmt.Errorf("load issuer stats: %w", err)
	}

	ids, err := s.ListByIssuer(ctx, issuer, 0, s.maxPageSize)
	if err != nil {
		return models.IssuerStats{}, err
	}
	stats.CertificateIDs = ids
	return stats, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
