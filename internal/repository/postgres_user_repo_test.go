package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/hitoshi/tourneyreg/internal/model"
)

var userRowColumns = []string{
	"id", "first_name", "nick", "team_name", "email", "phone", "tournament",
	"password_hash", "phone_verified", "paid", "paid_at", "payment_ref", "created_at",
}

func newMockDB(t *testing.T) (*PostgresUserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresUserRepo(db), mock
}

func sampleUserRow(createdAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(userRowColumns).AddRow(
		int64(7), "Ivan", "shadow", "Rockets", "ivan@example.com", "+380501234567", "spring-cup",
		"$2a$10$hash", true, false, nil, nil, createdAt,
	)
}

func TestPostgresUserRepo_FindByID_Found(t *testing.T) {
	repo, mock := newMockDB(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sampleUserRow(created))

	user, err := repo.FindByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if user == nil || user.ID != 7 || user.Nick != "shadow" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PaidAt != nil || user.PaymentRef != nil {
		t.Errorf("expected nil PaidAt/PaymentRef, got %v/%v", user.PaidAt, user.PaymentRef)
	}
	if !user.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", user.CreatedAt, created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUserRepo_FindByID_NotFoundReturnsNil(t *testing.T) {
	repo, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	user, err := repo.FindByID(context.Background(), 99)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user, got %+v", user)
	}
}

func TestPostgresUserRepo_FindByEmailOrPhone(t *testing.T) {
	repo, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1 OR phone = \$2`).
		WithArgs("ivan@example.com", "+380501234567").
		WillReturnRows(sampleUserRow(time.Now()))

	user, err := repo.FindByEmailOrPhone(context.Background(), "ivan@example.com", "+380501234567")
	if err != nil {
		t.Fatalf("FindByEmailOrPhone returned error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
}

func TestPostgresUserRepo_Create_SetsIDAndCreatedAt(t *testing.T) {
	repo, mock := newMockDB(t)
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("Ivan", "shadow", "Rockets", "ivan@example.com", "+380501234567", "spring-cup", "hash", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(12), created))

	user := &model.User{
		FirstName: "Ivan", Nick: "shadow", TeamName: "Rockets", Email: "ivan@example.com",
		Phone: "+380501234567", Tournament: "spring-cup", PasswordHash: "hash", PhoneVerified: true,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if user.ID != 12 || !user.CreatedAt.Equal(created) {
		t.Errorf("ID/CreatedAt not set: %d %v", user.ID, user.CreatedAt)
	}
}

func TestPostgresUserRepo_Create_UniqueViolation(t *testing.T) {
	repo, mock := newMockDB(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	err := repo.Create(context.Background(), &model.User{Email: "dup@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Create error = %v, want ErrDuplicate", err)
	}
}

func TestPostgresUserRepo_UpdateFields_OnlyGivenColumns(t *testing.T) {
	repo, mock := newMockDB(t)
	nick := "newnick"
	email := "new@example.com"

	mock.ExpectQuery(`UPDATE users SET nick = \$2, email = \$3 WHERE id = \$1 RETURNING`).
		WithArgs(int64(7), "newnick", "new@example.com").
		WillReturnRows(sampleUserRow(time.Now()))

	user, err := repo.UpdateFields(context.Background(), 7, model.UserPatch{Nick: &nick, Email: &email})
	if err != nil {
		t.Fatalf("UpdateFields returned error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUserRepo_UpdateFields_Errors(t *testing.T) {
	nick := "n"

	t.Run("対象なしはErrNotFound", func(t *testing.T) {
		repo, mock := newMockDB(t)
		mock.ExpectQuery(`UPDATE users SET nick = \$2`).WillReturnRows(sqlmock.NewRows(userRowColumns))

		_, err := repo.UpdateFields(context.Background(), 1, model.UserPatch{Nick: &nick})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("一意制約違反はErrDuplicate", func(t *testing.T) {
		repo, mock := newMockDB(t)
		mock.ExpectQuery(`UPDATE users SET nick = \$2`).WillReturnError(&pq.Error{Code: "23505"})

		_, err := repo.UpdateFields(context.Background(), 1, model.UserPatch{Nick: &nick})
		if !errors.Is(err, ErrDuplicate) {
			t.Errorf("error = %v, want ErrDuplicate", err)
		}
	})

	t.Run("空パッチはクエリを発行しない", func(t *testing.T) {
		repo, mock := newMockDB(t)
		if _, err := repo.UpdateFields(context.Background(), 1, model.UserPatch{}); err == nil {
			t.Error("expected error for empty patch")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unexpected query: %v", err)
		}
	})
}

func TestPostgresUserRepo_SetPayment(t *testing.T) {
	paidAt := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	ref := "INV-1"

	t.Run("参照番号あり", func(t *testing.T) {
		repo, mock := newMockDB(t)
		rows := sqlmock.NewRows(userRowColumns).AddRow(
			int64(7), "Ivan", "shadow", "Rockets", "ivan@example.com", "+380501234567", "spring-cup",
			"hash", true, true, paidAt, ref, paidAt,
		)
		mock.ExpectQuery(`UPDATE users SET paid = \$2, paid_at = \$3, payment_ref = \$4 WHERE id = \$1`).
			WithArgs(int64(7), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(rows)

		user, err := repo.SetPayment(context.Background(), 7, true, &paidAt, &ref, true)
		if err != nil {
			t.Fatalf("SetPayment returned error: %v", err)
		}
		if !user.Paid || user.PaidAt == nil || !user.PaidAt.Equal(paidAt) {
			t.Errorf("payment not reflected: %+v", user)
		}
		if user.PaymentRef == nil || *user.PaymentRef != ref {
			t.Errorf("PaymentRef = %v, want %q", user.PaymentRef, ref)
		}
	})

	t.Run("参照番号なしはpayment_refを更新しない", func(t *testing.T) {
		repo, mock := newMockDB(t)
		mock.ExpectQuery(`UPDATE users SET paid = \$2, paid_at = \$3 WHERE id = \$1`).
			WithArgs(int64(7), false, sqlmock.AnyArg()).
			WillReturnRows(sampleUserRow(time.Now()))

		if _, err := repo.SetPayment(context.Background(), 7, false, nil, nil, false); err != nil {
			t.Fatalf("SetPayment returned error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("対象なしはErrNotFound", func(t *testing.T) {
		repo, mock := newMockDB(t)
		mock.ExpectQuery(`UPDATE users SET paid`).WillReturnRows(sqlmock.NewRows(userRowColumns))

		_, err := repo.SetPayment(context.Background(), 404, true, &paidAt, nil, false)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestPostgresUserRepo_ListAll_NewestFirst(t *testing.T) {
	repo, mock := newMockDB(t)
	newer := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	older := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(userRowColumns).
		AddRow(int64(2), "B", "b", "T", "b@example.com", "+380501234568", "cup", "h", true, false, nil, nil, newer).
		AddRow(int64(1), "A", "a", "T", "a@example.com", "+380501234567", "cup", "h", true, false, nil, nil, older)
	mock.ExpectQuery(`SELECT .+ FROM users ORDER BY created_at DESC`).WillReturnRows(rows)

	users, err := repo.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	if len(users) != 2 || users[0].ID != 2 || users[1].ID != 1 {
		t.Errorf("unexpected order: %+v", users)
	}
}

func TestPostgresUserRepo_ListAll_EmptyIsNonNil(t *testing.T) {
	repo, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT .+ FROM users ORDER BY`).WillReturnRows(sqlmock.NewRows(userRowColumns))

	users, err := repo.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	if users == nil || len(users) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", users)
	}
}

func TestPostgresUserRepo_DeleteAll_TruncatesAndRestartsIdentity(t *testing.T) {
	repo, mock := newMockDB(t)
	mock.ExpectExec(`TRUNCATE users, password_resets RESTART IDENTITY CASCADE`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.DeleteAll(context.Background()); err != nil {
		t.Fatalf("DeleteAll returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUserRepo_FindByEmailAndPhone(t *testing.T) {
	repo, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("ivan@example.com").
		WillReturnRows(sampleUserRow(time.Now()))
	mock.ExpectQuery(`SELECT .+ FROM users WHERE phone = \$1`).
		WithArgs("+380509999999").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	byEmail, err := repo.FindByEmail(context.Background(), "ivan@example.com")
	if err != nil || byEmail == nil {
		t.Fatalf("FindByEmail = %v, %v; want user", byEmail, err)
	}
	byPhone, err := repo.FindByPhone(context.Background(), "+380509999999")
	if err != nil {
		t.Fatalf("FindByPhone returned error: %v", err)
	}
	if byPhone != nil {
		t.Errorf("expected nil for unknown phone, got %+v", byPhone)
	}
}
