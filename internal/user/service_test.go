package user

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hitoshi/ideaarchitect/internal/model"
)

type mockUserRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.User, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error { return nil }
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type deleterFunc func(ctx context.Context, userID string) error

func (f deleterFunc) DeleteByUserID(ctx context.Context, userID string) error { return f(ctx, userID) }

func existingUser(calls *[]string) *mockUserRepo {
	return &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "alice@example.com"}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			*calls = append(*calls, "user")
			return nil
		},
	}
}

func recordingDeleter(name string, calls *[]string) deleterFunc {
	return func(ctx context.Context, userID string) error {
		*calls = append(*calls, name+":"+userID)
		return nil
	}
}

func TestService_Withdraw_RevokesSessionsFirst(t *testing.T) {
	var calls []string
	var logBuf bytes.Buffer
	svc := NewService(
		existingUser(&calls),
		recordingDeleter("sessions", &calls),
		recordingDeleter("ideas", &calls),
		slog.New(slog.NewJSONHandler(&logBuf, nil)),
	)

	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}

	want := []string{"sessions:user-1", "ideas:user-1", "user"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	if !strings.Contains(logBuf.String(), `"msg":"user withdrawn"`) {
		t.Errorf("withdrawal should be logged, got %s", logBuf.String())
	}
}

func TestService_Withdraw_UserNotFound(t *testing.T) {
	var calls []string
	svc := NewService(&mockUserRepo{}, recordingDeleter("sessions", &calls), recordingDeleter("ideas", &calls), nil)

	err := svc.Withdraw(context.Background(), "ghost")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("nothing should be deleted, calls = %v", calls)
	}
}

func TestService_Withdraw_LookupError(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, errors.New("connection reset")
		},
	}
	svc := NewService(repo, nil, nil, nil)

	err := svc.Withdraw(context.Background(), "user-1")
	if err == nil || !strings.Contains(err.Error(), "failed to find user") {
		t.Errorf("err = %v", err)
	}
}

func TestService_Withdraw_StopsOnFailedStep(t *testing.T) {
	tests := []struct {
		name     string
		failStep string
		wantErr  string
		wantRun  []string
	}{
		{"セッション削除の失敗", "sessions", "failed to delete sessions", nil},
		{"アイデア削除の失敗", "ideas", "failed to delete ideas", []string{"sessions:user-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			failing := func(name string) deleterFunc {
				if name == tt.failStep {
					return func(ctx context.Context, userID string) error { return errors.New("db down") }
				}
				return recordingDeleter(name, &calls)
			}

			svc := NewService(existingUser(&calls), failing("sessions"), failing("ideas"), nil)

			err := svc.Withdraw(context.Background(), "user-1")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
			if strings.Join(calls, ",") != strings.Join(tt.wantRun, ",") {
				t.Errorf("calls = %v, want %v", calls, tt.wantRun)
			}
		})
	}
}

func TestService_Withdraw_UserDeleteError(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error { return errors.New("fk violation") },
	}
	svc := NewService(repo, nil, nil, nil)

	if err := svc.Withdraw(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error")
	}
}
