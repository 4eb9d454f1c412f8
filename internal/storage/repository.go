package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertPendingSQL = `INSERT INTO pending_transactions (
        account,
        idx,
        id,
        status,
        delay_hours,
        created_at,
        execute_at,
        resolved_at,
        ready_notified,
        intent,
        analysis
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (account, idx) DO UPDATE
    SET
        status         = EXCLUDED.status,
        resolved_at    = EXCLUDED.resolved_at,
        ready_notified = EXCLUDED.ready_notified;`

	listPendingSQL = `SELECT
        account,
        idx,
        id,
        status,
        delay_hours,
        created_at,
        execute_at,
        resolved_at,
        ready_notified,
        intent,
        analysis
    FROM pending_transactions
    WHERE account = $1
    ORDER BY idx;`

	listAccountsSQL = `SELECT account FROM pending_transactions WHERE status = 'PENDING'
    UNION
    SELECT account FROM freeze_state WHERE active;`

	upsertFreezeSQL = `INSERT INTO freeze_state (account, active, until_ts, updated_at)
    VALUES ($1,$2,$3,NOW())
    ON CONFLICT (account) DO UPDATE
    SET active = EXCLUDED.active,
        until_ts = EXCLUDED.until_ts,
        updated_at = NOW()
    RETURNING updated_at;`

	loadFreezeSQL = `SELECT account, active, until_ts, updated_at FROM freeze_state WHERE account = $1;`

	upsertSettingsSQL = `INSERT INTO vault_settings (
        account,
        daily_limit_eth,
        timelock_hours,
        guardian_count,
        guardians,
        notifications_enabled,
        updated_at
    ) VALUES ($1,$2,$3,$4,$5,$6,NOW())
    ON CONFLICT (account) DO UPDATE
    SET daily_limit_eth       = EXCLUDED.daily_limit_eth,
        timelock_hours        = EXCLUDED.timelock_hours,
        guardian_count        = EXCLUDED.guardian_count,
        guardians             = EXCLUDED.guardians,
        notifications_enabled = EXCLUDED.notifications_enabled,
        updated_at            = NOW();`

	loadSettingsSQL = `SELECT
        account,
        daily_limit_eth::text,
        timelock_hours,
        guardian_count,
        guardians,
        notifications_enabled,
        updated_at
    FROM vault_settings
    WHERE account = $1;`

	insertAssessmentSQL = `INSERT INTO risk_assessments (
        account,
        to_address,
        value_eth,
        function_name,
        score,
        level,
        action,
        delay_hours,
        findings
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    RETURNING id, created_at;`

	selectAssessmentColumns = `SELECT
        id,
        account,
        to_address,
        value_eth::text,
        function_name,
        score,
        level,
        action,
        delay_hours,
        findings,
        created_at
    FROM risk_assessments`

	listAssessmentsBetweenSQL = selectAssessmentColumns + `
    WHERE ($1 = '' OR account = $1)
      AND created_at >= $2
      AND created_at < $3
    ORDER BY created_at
    LIMIT $4;`

	listRecentAssessmentsSQL = selectAssessmentColumns + `
    WHERE ($1 = '' OR account = $1)
    ORDER BY created_at DESC
    LIMIT $2;`

	countAssessmentsSQL = `SELECT COUNT(*) FROM risk_assessments;`

	deleteAssessmentsBeforeSQL = `DELETE FROM risk_assessments WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// VaultStore persists queue, freeze and settings state per account.
type VaultStore interface {
	SavePending(ctx context.Context, rec PendingRecord) error
	ListPending(ctx context.Context, account string) ([]PendingRecord, error)
	ListActiveAccounts(ctx context.Context) ([]string, error)
	SaveFreeze(ctx context.Context, rec FreezeRecord) error
	LoadFreeze(ctx context.Context, account string) (FreezeRecord, bool, error)
	SaveSettings(ctx context.Context, rec SettingsRecord) error
	LoadSettings(ctx context.Context, account string) (SettingsRecord, bool, error)
}

// AssessmentStore defines operations for the analysis audit trail.
type AssessmentStore interface {
	InsertAssessment(ctx context.Context, rec AssessmentRecord) (AssessmentRecord, error)
	ListAssessmentsBetween(ctx context.Context, account string, from, to time.Time, limit int) ([]AssessmentRecord, error)
	ListRecentAssessments(ctx context.Context, account string, limit int) ([]AssessmentRecord, error)
	CountAssessments(ctx context.Context) (int64, error)
	DeleteAssessmentsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to vault state and assessments.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ VaultStore      = (*Store)(nil)
	_ AssessmentStore = (*Store)(nil)
	_ AdvisoryLocker  = (*Store)(nil)
)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// SavePending inserts a new entry or updates the mutable columns of an
// existing one.
func (s *Store) SavePending(ctx context.Context, rec PendingRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var resolved interface{}
	if rec.ResolvedAt != nil {
		resolved = *rec.ResolvedAt
	}

	if _, execErr := pool.Exec(ctx, upsertPendingSQL,
		rec.Account,
		rec.Index,
		rec.ID,
		rec.Status,
		rec.DelayHours,
		rec.CreatedAt,
		rec.ExecuteAt,
		resolved,
		rec.ReadyNotified,
		[]byte(rec.Intent),
		[]byte(rec.Analysis),
	); execErr != nil {
		return fmt.Errorf("save pending transaction: %w", execErr)
	}
	return nil
}

// ListPending lists every queue entry of account in index order.
func (s *Store) ListPending(ctx context.Context, account string) ([]PendingRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPendingSQL, account)
	if queryErr != nil {
		return nil, fmt.Errorf("list pending transactions: %w", queryErr)
	}
	defer rows.Close()

	records := make([]PendingRecord, 0)
	for rows.Next() {
		var (
			rec      PendingRecord
			resolved sql.NullTime
		)
		if scanErr := rows.Scan(
			&rec.Account,
			&rec.Index,
			&rec.ID,
			&rec.Status,
			&rec.DelayHours,
			&rec.CreatedAt,
			&rec.ExecuteAt,
			&resolved,
			&rec.ReadyNotified,
			&rec.Intent,
			&rec.Analysis,
		); scanErr != nil {
			return nil, fmt.Errorf("scan pending transaction: %w", scanErr)
		}
		if resolved.Valid {
			at := resolved.Time
			rec.ResolvedAt = &at
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ListActiveAccounts lists accounts with pending entries or an active
// freeze, so the sweep can restore them after a restart.
func (s *Store) ListActiveAccounts(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAccountsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active accounts: %w", queryErr)
	}
	accounts, collectErr := pgx.CollectRows(rows, pgx.RowTo[string])
	if collectErr != nil {
		return nil, fmt.Errorf("collect active accounts: %w", collectErr)
	}
	return accounts, nil
}

// SaveFreeze upserts the freeze state of an account.
func (s *Store) SaveFreeze(ctx context.Context, rec FreezeRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var until interface{}
	if rec.Active && rec.Until != nil {
		until = *rec.Until
	}

	var updated time.Time
	if scanErr := pool.QueryRow(ctx, upsertFreezeSQL, rec.Account, rec.Active, until).Scan(&updated); scanErr != nil {
		return fmt.Errorf("save freeze state: %w", scanErr)
	}
	return nil
}

// LoadFreeze returns the stored freeze state, reporting false when none was
// ever saved.
func (s *Store) LoadFreeze(ctx context.Context, account string) (FreezeRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return FreezeRecord{}, false, err
	}

	var (
		rec   FreezeRecord
		until sql.NullTime
	)
	scanErr := pool.QueryRow(ctx, loadFreezeSQL, account).Scan(&rec.Account, &rec.Active, &until, &rec.UpdatedAt)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return FreezeRecord{}, false, nil
	}
	if scanErr != nil {
		return FreezeRecord{}, false, fmt.Errorf("load freeze state: %w", scanErr)
	}
	if until.Valid {
		at := until.Time
		rec.Until = &at
	}
	return rec, true, nil
}

// SaveSettings upserts an account's policy.
func (s *Store) SaveSettings(ctx context.Context, rec SettingsRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	guardians := []byte(rec.Guardians)
	if len(guardians) == 0 {
		guardians = []byte("[]")
	}

	if _, execErr := pool.Exec(ctx, upsertSettingsSQL,
		rec.Account,
		rec.DailyLimitEth.String(),
		rec.TimelockHours,
		rec.GuardianCount,
		guardians,
		rec.NotificationsEnabled,
	); execErr != nil {
		return fmt.Errorf("save settings: %w", execErr)
	}
	return nil
}

// LoadSettings returns the stored policy, reporting false when none exists.
func (s *Store) LoadSettings(ctx context.Context, account string) (SettingsRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return SettingsRecord{}, false, err
	}

	var (
		rec      SettingsRecord
		limitStr string
	)
	scanErr := pool.QueryRow(ctx, loadSettingsSQL, account).Scan(
		&rec.Account,
		&limitStr,
		&rec.TimelockHours,
		&rec.GuardianCount,
		&rec.Guardians,
		&rec.NotificationsEnabled,
		&rec.UpdatedAt,
	)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return SettingsRecord{}, false, nil
	}
	if scanErr != nil {
		return SettingsRecord{}, false, fmt.Errorf("load settings: %w", scanErr)
	}

	limit, convErr := decimal.NewFromString(limitStr)
	if convErr != nil {
		return SettingsRecord{}, false, fmt.Errorf("parse daily limit: %w", convErr)
	}
	rec.DailyLimitEth = limit
	return rec, true, nil
}

// InsertAssessment records an analysis and returns it with id and timestamp.
func (s *Store) InsertAssessment(ctx context.Context, rec AssessmentRecord) (AssessmentRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AssessmentRecord{}, err
	}

	findings := []byte(rec.Findings)
	if len(findings) == 0 {
		findings = []byte("[]")
	}

	row := pool.QueryRow(ctx, insertAssessmentSQL,
		rec.Account,
		rec.To,
		rec.Value.String(),
		rec.FunctionName,
		rec.Score,
		rec.Level,
		rec.Action,
		rec.DelayHours,
		findings,
	)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AssessmentRecord{}, fmt.Errorf("insert assessment: %w", scanErr)
	}
	return rec, nil
}

// ListAssessmentsBetween lists assessments within a time window in
// ascending order. An empty account matches every account.
func (s *Store) ListAssessmentsBetween(ctx context.Context, account string, from, to time.Time, limit int) ([]AssessmentRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAssessmentsBetweenSQL, account, from, to, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list assessments between: %w", queryErr)
	}
	return collectAssessments(rows)
}

// ListRecentAssessments lists the newest assessments first.
func (s *Store) ListRecentAssessments(ctx context.Context, account string, limit int) ([]AssessmentRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAssessmentsSQL, account, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent assessments: %w", queryErr)
	}
	return collectAssessments(rows)
}

// CountAssessments counts stored assessments.
func (s *Store) CountAssessments(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAssessmentsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count assessments: %w", scanErr)
	}
	return count, nil
}

// DeleteAssessmentsBefore prunes the audit trail.
func (s *Store) DeleteAssessmentsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteAssessmentsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete assessments before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func collectAssessments(rows pgx.Rows) ([]AssessmentRecord, error) {
	defer rows.Close()

	records := make([]AssessmentRecord, 0)
	for rows.Next() {
		rec, scanErr := scanAssessment(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanAssessment(rows pgx.Rows) (AssessmentRecord, error) {
	var (
		rec      AssessmentRecord
		valueStr string
	)
	if err := rows.Scan(
		&rec.ID,
		&rec.Account,
		&rec.To,
		&valueStr,
		&rec.FunctionName,
		&rec.Score,
		&rec.Level,
		&rec.Action,
		&rec.DelayHours,
		&rec.Findings,
		&rec.CreatedAt,
	); err != nil {
		return AssessmentRecord{}, err
	}

	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return AssessmentRecord{}, fmt.Errorf("parse assessment value: %w", err)
	}
	rec.Value = value
	return rec, nil
}
