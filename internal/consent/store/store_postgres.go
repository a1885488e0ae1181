package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"cms/internal/consent/models"
	"cms/pkg/platform/sentinel"
)

// PostgresStore persists consents and authorisations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a PostgreSQL-backed store bound to a transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const consentColumns = `id, external_id, instance_id, consent_type, status, valid_until, frequency_per_day,
	usages, psu_data, multilevel_sca_required, recurring_indicator, aspsp_access, tpp_access,
	tpp_authorisation_number, tpp_redirect_uri, tpp_nok_redirect_uri, consent_data,
	creation_timestamp, status_change_timestamp, last_action_at, revision, checksum`

const authorisationColumns = `id, external_id, parent_external_id, instance_id, authorisation_type, sca_status,
	psu_data, redirect_url_expires_at, authorisation_expires_at, authentication_method_id,
	sca_authentication_data, tpp_ok_redirect_uri, tpp_nok_redirect_uri, created_at, revision, checksum`

func (s *PostgresStore) FindConsentByExternalID(ctx context.Context, externalID, instanceID string) (*models.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE external_id = $1 AND instance_id = $2`
	consent, err := scanConsent(s.execer().QueryRowContext(ctx, query, externalID, instanceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent: %w", err)
	}
	return consent, nil
}

// FindConsentsByPsu matches the PSU on all four identity fields of any entry in psu_data.
func (s *PostgresStore) FindConsentsByPsu(ctx context.Context, q models.PsuConsentQuery) ([]*models.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents c
		WHERE c.instance_id = $1
		AND ($2 = '' OR c.consent_type = $2)
		AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(c.psu_data) p
			WHERE COALESCE(p->>'psuId', '') = $3
			AND COALESCE(p->>'psuIdType', '') = $4
			AND COALESCE(p->>'psuCorporateId', '') = $5
			AND COALESCE(p->>'psuCorporateIdType', '') = $6
		)
		ORDER BY c.creation_timestamp, c.external_id
		LIMIT $7 OFFSET $8`
	rows, err := s.execer().QueryContext(ctx, query,
		q.InstanceID,
		string(q.Type),
		q.Psu.PsuID,
		q.Psu.PsuIDType,
		q.Psu.PsuCorporateID,
		q.Psu.PsuCorporateIDType,
		limit(q.Page),
		q.Page.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("find consents by psu: %w", err)
	}
	return collectConsents(rows)
}

func (s *PostgresStore) FindOldConsents(ctx context.Context, q models.OldConsentQuery) ([]*models.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents
		WHERE instance_id = $1
		AND tpp_authorisation_number = $2
		AND ($3 = '' OR consent_type = $3)
		AND external_id <> $4
		AND status IN ('RECEIVED', 'PARTIALLY_AUTHORISED', 'VALID')
		ORDER BY creation_timestamp, external_id`
	rows, err := s.execer().QueryContext(ctx, query,
		q.InstanceID,
		q.TppAuthorisationNumber,
		string(q.Type),
		q.ExcludeExternalID,
	)
	if err != nil {
		return nil, fmt.Errorf("find old consents: %w", err)
	}
	return collectConsents(rows)
}

func (s *PostgresStore) FindAuthorisationByExternalID(ctx context.Context, externalID, instanceID string) (*models.Authorisation, error) {
	query := `SELECT ` + authorisationColumns + ` FROM authorisations WHERE external_id = $1 AND instance_id = $2`
	auth, err := scanAuthorisation(s.execer().QueryRowContext(ctx, query, externalID, instanceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find authorisation: %w", err)
	}
	return auth, nil
}

func (s *PostgresStore) FindAuthorisationsByParent(ctx context.Context, q models.ParentQuery) ([]*models.Authorisation, error) {
	query := `SELECT ` + authorisationColumns + ` FROM authorisations
		WHERE parent_external_id = $1 AND instance_id = $2
		AND ($3 = '' OR authorisation_type = $3)
		ORDER BY created_at, external_id
		LIMIT $4 OFFSET $5`
	rows, err := s.execer().QueryContext(ctx, query,
		q.ParentExternalID,
		q.InstanceID,
		string(q.Type),
		limit(q.Page),
		q.Page.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("find authorisations by parent: %w", err)
	}
	defer rows.Close()

	var out []*models.Authorisation
	for rows.Next() {
		auth, err := scanAuthorisation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan authorisation: %w", err)
		}
		out = append(out, auth)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authorisations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) InsertConsent(ctx context.Context, consent *models.Consent) error {
	args, err := consentArgs(consent)
	if err != nil {
		return err
	}
	query := `INSERT INTO consents (` + consentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (external_id, instance_id) DO NOTHING`
	res, err := s.execer().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert consent: %w", err)
	}
	return requireOneRow(res, "insert consent")
}

// CompareAndSwapConsent replaces the row only while its checksum equals expectedChecksum.
func (s *PostgresStore) CompareAndSwapConsent(ctx context.Context, consent *models.Consent, expectedChecksum string) error {
	args, err := consentArgs(consent)
	if err != nil {
		return err
	}
	query := `UPDATE consents SET
			consent_type = $4, status = $5, valid_until = $6, frequency_per_day = $7, usages = $8,
			psu_data = $9, multilevel_sca_required = $10, recurring_indicator = $11, aspsp_access = $12,
			tpp_access = $13, tpp_authorisation_number = $14, tpp_redirect_uri = $15,
			tpp_nok_redirect_uri = $16, consent_data = $17, creation_timestamp = $18,
			status_change_timestamp = $19, last_action_at = $20, revision = $21, checksum = $22
		WHERE id = $1 AND external_id = $2 AND instance_id = $3 AND checksum = $23`
	res, err := s.execer().ExecContext(ctx, query, append(args, expectedChecksum)...)
	if err != nil {
		return fmt.Errorf("update consent: %w", err)
	}
	return requireOneRow(res, "update consent")
}

func (s *PostgresStore) InsertAuthorisation(ctx context.Context, auth *models.Authorisation) error {
	args, err := authorisationArgs(auth)
	if err != nil {
		return err
	}
	query := `INSERT INTO authorisations (` + authorisationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (external_id, instance_id) DO NOTHING`
	res, err := s.execer().ExecContext(ctx, query, args...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert authorisation: %w", err)
	}
	return requireOneRow(res, "insert authorisation")
}

func (s *PostgresStore) CompareAndSwapAuthorisation(ctx context.Context, auth *models.Authorisation, expectedChecksum string) error {
	args, err := authorisationArgs(auth)
	if err != nil {
		return err
	}
	query := `UPDATE authorisations SET
			parent_external_id = $3, authorisation_type = $5, sca_status = $6, psu_data = $7,
			redirect_url_expires_at = $8, authorisation_expires_at = $9, authentication_method_id = $10,
			sca_authentication_data = $11, tpp_ok_redirect_uri = $12, tpp_nok_redirect_uri = $13,
			created_at = $14, revision = $15, checksum = $16
		WHERE id = $1 AND external_id = $2 AND instance_id = $4 AND checksum = $17`
	res, err := s.execer().ExecContext(ctx, query, append(args, expectedChecksum)...)
	if err != nil {
		return fmt.Errorf("update authorisation: %w", err)
	}
	return requireOneRow(res, "update authorisation")
}

// requireOneRow maps a write that touched nothing to sentinel.ErrConflict.
func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func limit(p models.Page) any {
	if p.Size <= 0 {
		return nil
	}
	return p.Size
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func consentArgs(c *models.Consent) ([]any, error) {
	usages, err := json.Marshal(nonNil(c.Usages))
	if err != nil {
		return nil, fmt.Errorf("marshal usages: %w", err)
	}
	psus, err := json.Marshal(nonNilPsus(c.PsuDataList))
	if err != nil {
		return nil, fmt.Errorf("marshal psu data: %w", err)
	}
	aspsp, err := json.Marshal(c.AspspAccountAccesses)
	if err != nil {
		return nil, fmt.Errorf("marshal aspsp access: %w", err)
	}
	tpp, err := json.Marshal(c.TppAccountAccesses)
	if err != nil {
		return nil, fmt.Errorf("marshal tpp access: %w", err)
	}
	return []any{
		c.ID,
		c.ExternalID,
		c.InstanceID,
		string(c.Type),
		string(c.Status),
		models.Day(c.ValidUntil),
		c.FrequencyPerDay,
		string(usages),
		string(psus),
		c.MultilevelScaRequired,
		c.RecurringIndicator,
		string(aspsp),
		string(tpp),
		c.TppInfo.AuthorisationNumber,
		c.TppInfo.RedirectURI,
		c.TppInfo.NokRedirectURI,
		c.Data,
		c.CreationTimestamp,
		c.StatusChangeTimestamp,
		c.LastActionDate,
		c.Revision,
		c.Checksum,
	}, nil
}

func authorisationArgs(a *models.Authorisation) ([]any, error) {
	var psuJSON any
	if a.PsuData != nil {
		raw, err := json.Marshal(a.PsuData)
		if err != nil {
			return nil, fmt.Errorf("marshal psu data: %w", err)
		}
		psuJSON = string(raw)
	}
	return []any{
		a.ID,
		a.ExternalID,
		a.ParentExternalID,
		a.InstanceID,
		string(a.Type),
		string(a.ScaStatus),
		psuJSON,
		a.RedirectURLExpiresAt,
		a.AuthorisationExpiresAt,
		a.AuthenticationMethodID,
		a.ScaAuthenticationData,
		a.TppOkRedirectURI,
		a.TppNokRedirectURI,
		a.CreatedAt,
		a.Revision,
		a.Checksum,
	}, nil
}

func nonNil(u map[string]int) map[string]int {
	if u == nil {
		return map[string]int{}
	}
	return u
}

func nonNilPsus(list []models.PsuData) []models.PsuData {
	if list == nil {
		return []models.PsuData{}
	}
	return list
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectConsents(rows *sql.Rows) ([]*models.Consent, error) {
	defer rows.Close()
	var out []*models.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return out, nil
}

func scanConsent(row rowScanner) (*models.Consent, error) {
	var (
		c                        models.Consent
		consentType, status      string
		usages, psus, aspsp, tpp []byte
	)
	err := row.Scan(
		&c.ID,
		&c.ExternalID,
		&c.InstanceID,
		&consentType,
		&status,
		&c.ValidUntil,
		&c.FrequencyPerDay,
		&usages,
		&psus,
		&c.MultilevelScaRequired,
		&c.RecurringIndicator,
		&aspsp,
		&tpp,
		&c.TppInfo.AuthorisationNumber,
		&c.TppInfo.RedirectURI,
		&c.TppInfo.NokRedirectURI,
		&c.Data,
		&c.CreationTimestamp,
		&c.StatusChangeTimestamp,
		&c.LastActionDate,
		&c.Revision,
		&c.Checksum,
	)
	if err != nil {
		return nil, err
	}
	c.Type = models.ConsentType(consentType)
	c.Status = models.ConsentStatus(status)
	c.ValidUntil = models.Day(c.ValidUntil)
	if err := unmarshalJSON(usages, &c.Usages); err != nil {
		return nil, fmt.Errorf("unmarshal usages: %w", err)
	}
	if err := unmarshalJSON(psus, &c.PsuDataList); err != nil {
		return nil, fmt.Errorf("unmarshal psu data: %w", err)
	}
	if err := unmarshalJSON(aspsp, &c.AspspAccountAccesses); err != nil {
		return nil, fmt.Errorf("unmarshal aspsp access: %w", err)
	}
	if err := unmarshalJSON(tpp, &c.TppAccountAccesses); err != nil {
		return nil, fmt.Errorf("unmarshal tpp access: %w", err)
	}
	return &c, nil
}

func scanAuthorisation(row rowScanner) (*models.Authorisation, error) {
	var (
		a                   models.Authorisation
		authType, scaStatus string
		psuJSON             []byte
	)
	err := row.Scan(
		&a.ID,
		&a.ExternalID,
		&a.ParentExternalID,
		&a.InstanceID,
		&authType,
		&scaStatus,
		&psuJSON,
		&a.RedirectURLExpiresAt,
		&a.AuthorisationExpiresAt,
		&a.AuthenticationMethodID,
		&a.ScaAuthenticationData,
		&a.TppOkRedirectURI,
		&a.TppNokRedirectURI,
		&a.CreatedAt,
		&a.Revision,
		&a.Checksum,
	)
	if err != nil {
		return nil, err
	}
	a.Type = models.AuthorisationType(authType)
	a.ScaStatus = models.ScaStatus(scaStatus)
	if len(psuJSON) > 0 {
		var p models.PsuData
		if err := json.Unmarshal(psuJSON, &p); err != nil {
			return nil, fmt.Errorf("unmarshal psu data: %w", err)
		}
		a.PsuData = &p
	}
	return &a, nil
}

func unmarshalJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

var _ Repository = (*PostgresStore)(nil)
