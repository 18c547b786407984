package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPGFindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	cols := []string{"id", "email", "full_name", "password_hash", "active", "admin", "created_at", "updated_at"}
	mock.ExpectQuery("select id, email, full_name, password_hash, active, admin, created_at, updated_at.*from users where email=").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("user-1", "alice@example.com", "Alice", "$2a$10$hash", true, false, now, now))

	store := NewPGStore(db)
	user, err := store.Users(context.Background()).FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ID != "user-1" || user.Email != "alice@example.com" || !user.Active {
		t.Fatalf("unexpected user: %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGFindByEmailNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	cols := []string{"id", "email", "full_name", "password_hash", "active", "admin", "created_at", "updated_at"}
	mock.ExpectQuery("select id, email, full_name, password_hash, active, admin, created_at, updated_at.*from users where email=").
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows(cols))

	store := NewPGStore(db)
	_, err = store.Users(context.Background()).FindByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByEmail = %v, want ErrNotFound", err)
	}
}

func TestPGCreateUserUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), "dup@example.com", "Dup", "$2a$10$hash", true, false).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	store := NewPGStore(db)
	u := &User{Email: "dup@example.com", FullName: "Dup", PasswordHash: "$2a$10$hash", Active: true}
	if err := store.Users(context.Background()).Create(context.Background(), u); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("Create = %v, want ErrAlreadyExists", err)
	}
	if u.ID == "" {
		t.Fatal("Create must assign an ID before the insert")
	}
}

func TestPGRedeemResetToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("update password_reset_tokens set used_at=").
		WithArgs("deadbeef", now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-7"))
	mock.ExpectExec("update users set password_hash=").
		WithArgs("user-7", "$2a$10$newhash", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPGStore(db)
	userID, err := store.RedeemResetToken(context.Background(), "deadbeef", "$2a$10$newhash", now)
	if err != nil {
		t.Fatalf("RedeemResetToken: %v", err)
	}
	if userID != "user-7" {
		t.Fatalf("userID = %q, want user-7", userID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRedeemResetTokenNoEligibleRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	// Spent or expired token: the guarded UPDATE matches nothing, and the
	// transaction must roll back without touching users.
	mock.ExpectBegin()
	mock.ExpectQuery("update password_reset_tokens set used_at=").
		WithArgs("deadbeef", now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectRollback()

	store := NewPGStore(db)
	_, err = store.RedeemResetToken(context.Background(), "deadbeef", "$2a$10$newhash", now)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("RedeemResetToken = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGFindResetTokenByHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	used := now.Add(-time.Minute)
	cols := []string{"id", "user_id", "token_hash", "expires_at", "used_at", "created_at"}
	mock.ExpectQuery("select id, user_id, token_hash, expires_at, used_at, created_at.*from password_reset_tokens").
		WithArgs("cafe").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("tok-1", "user-7", "cafe", now.Add(time.Hour), used, now.Add(-time.Hour)))

	store := NewPGStore(db)
	tok, err := store.ResetTokens(context.Background()).FindByHash(context.Background(), "cafe")
	if err != nil {
		t.Fatalf("FindByHash: %v", err)
	}
	if !tok.Consumed() {
		t.Fatal("token with used_at set must report Consumed")
	}
	if tok.Expired(now) {
		t.Fatal("token expiring in an hour must not report Expired")
	}
}
