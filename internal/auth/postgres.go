package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gatelist.org/internal/audit"
	"gatelist.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL through database/sql with the pgx
// driver.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Open connects to PostgreSQL and tunes the pool for a request-serving
// workload.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) Users(ctx context.Context) UserStore       { return &pgUsers{db: s.db} }
func (s *PGStore) Sessions(ctx context.Context) SessionStore { return &pgSessions{db: s.db} }
func (s *PGStore) Audit(ctx context.Context) audit.Sink      { return &pgAudit{db: s.db} }

// isUniqueViolation reports a PostgreSQL unique-constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// User store ---------------------------------------------------------------

type pgUsers struct{ db *sql.DB }

const userColumns = `id, email, password_hash, name, phone, role, verified,
	verification_token, verification_expires, failed_login_count, lock_until,
	last_login, created_at, updated_at`

func (s *pgUsers) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, name, phone, role, verified,
			verification_token, verification_expires)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Email, nullString(u.PasswordHash), u.Name, nullString(u.Phone),
		string(u.Role), u.Verified, nullString(u.VerificationToken),
		nullTime(u.VerificationExpires),
	)
	if isUniqueViolation(err) {
		return ErrDuplicateUser
	}
	return err
}

func (s *pgUsers) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *pgUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *pgUsers) FindByVerificationToken(ctx context.Context, token string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where verification_token=$1`, token)
	return scanUser(row)
}

func (s *pgUsers) RecordLoginFailure(ctx context.Context, id string) (int, error) {
	// Single-statement increment: concurrent failures cannot lose updates.
	row := s.db.QueryRowContext(ctx,
		`update users
		 set failed_login_count = failed_login_count + 1, updated_at = now()
		 where id=$1
		 returning failed_login_count`, id)
	var count int
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return count, nil
}

func (s *pgUsers) Lock(ctx context.Context, id string, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update users set lock_until=$2, updated_at=now() where id=$1`, id, until)
	return err
}

func (s *pgUsers) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update users
		 set failed_login_count = 0, lock_until = null, last_login = $2, updated_at = now()
		 where id=$1`, id, at)
	return err
}

func (s *pgUsers) MarkVerified(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update users
		 set verified = true, verification_token = null, verification_expires = null,
			updated_at = now()
		 where id=$1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u            User
		role         string
		passwordHash sql.NullString
		phone        sql.NullString
		verifToken   sql.NullString
		verifExpires sql.NullTime
		lockUntil    sql.NullTime
		lastLogin    sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &passwordHash, &u.Name, &phone, &role,
		&u.Verified, &verifToken, &verifExpires, &u.FailedLoginCount,
		&lockUntil, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = Role(role)
	u.PasswordHash = passwordHash.String
	u.Phone = phone.String
	u.VerificationToken = verifToken.String
	u.VerificationExpires = timePtr(verifExpires)
	u.LockUntil = timePtr(lockUntil)
	u.LastLogin = timePtr(lastLogin)
	return &u, nil
}

// Session store ------------------------------------------------------------

type pgSessions struct{ db *sql.DB }

func (s *pgSessions) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, user_id, token, expires_at, created_at, ip_address, user_agent)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		sess.ID, sess.UserID, sess.Token, sess.ExpiresAt, sess.CreatedAt,
		nullString(sess.IPAddress), nullString(sess.UserAgent),
	)
	return err
}

func (s *pgSessions) FindByToken(ctx context.Context, token string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token, expires_at, created_at, ip_address, user_agent
		 from sessions where token=$1`, token)
	var (
		sess      Session
		ipAddress sql.NullString
		userAgent sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Token, &sess.ExpiresAt,
		&sess.CreatedAt, &ipAddress, &userAgent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sess.IPAddress = ipAddress.String
	sess.UserAgent = userAgent.String
	return &sess, nil
}

func (s *pgSessions) DeleteByToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where token=$1`, token)
	return err
}

func (s *pgSessions) DeleteByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where user_id=$1`, userID)
	return err
}

// Audit store --------------------------------------------------------------

type pgAudit struct{ db *sql.DB }

func (s *pgAudit) Append(ctx context.Context, entry *audit.Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, user_id, action, resource_type, detail, ip_address, user_agent)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.OccurredAt, nullString(entry.UserID), string(entry.Action),
		entry.ResourceType, nullString(entry.Detail), nullString(entry.IPAddress),
		nullString(entry.UserAgent),
	)
	return err
}

// helpers ------------------------------------------------------------------

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
