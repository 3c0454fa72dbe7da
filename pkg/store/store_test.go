package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.txt")
	s := New(path, zerolog.Nop())
	if err := s.Load(); err != nil {
		t.Fatalf("failed to load empty store: %v", err)
	}
	return s, path
}

func TestLoadMissingFileIsEmptyStore(t *testing.T) {
	s, _ := newTestStore(t)
	if s.Count() != 0 {
		t.Fatalf("expected empty store, got %d accounts", s.Count())
	}
}

func TestRegisterAndVerify(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.Register("alice", "pw1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := s.Verify("alice", "pw1"); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := s.Verify("alice", "wrong"); !errors.Is(err, ErrBadPassword) {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}
	if err := s.Verify("bob", "pw1"); !errors.Is(err, ErrNoSuchAccount) {
		t.Fatalf("expected ErrNoSuchAccount, got %v", err)
	}
}

func TestRegisterDuplicateFailsOnce(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.Register("alice", "pw1"); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := s.Register("alice", "pw2"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	// Original password untouched by the failed attempt.
	if err := s.Verify("alice", "pw1"); err != nil {
		t.Fatalf("verify after duplicate register failed: %v", err)
	}
}

func TestRegisterRejectsEmptyCredentials(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.Register("", "pw"); !errors.Is(err, ErrEmptyCredentials) {
		t.Fatalf("expected ErrEmptyCredentials for empty id, got %v", err)
	}
	if err := s.Register("alice", ""); !errors.Is(err, ErrEmptyCredentials) {
		t.Fatalf("expected ErrEmptyCredentials for empty password, got %v", err)
	}
}

func TestRegisterConcurrentDuplicates(t *testing.T) {
	s, _ := newTestStore(t)

	const workers = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Register("alice", "pw1"); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one successful register, got %d", count)
	}
}

func TestChangePassword(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Register("alice", "pw1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := s.ChangePassword("alice", "wrong", "pw2"); !errors.Is(err, ErrBadPassword) {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}
	// Old password still works after the failed change.
	if err := s.Verify("alice", "pw1"); err != nil {
		t.Fatalf("password should be unchanged: %v", err)
	}

	if err := s.ChangePassword("alice", "pw1", "pw2"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if err := s.Verify("alice", "pw2"); err != nil {
		t.Fatalf("verify with new password failed: %v", err)
	}
	if err := s.Verify("alice", "pw1"); !errors.Is(err, ErrBadPassword) {
		t.Fatalf("old password should no longer verify, got %v", err)
	}

	if err := s.ChangePassword("alice", "pw2", ""); !errors.Is(err, ErrEmptyCredentials) {
		t.Fatalf("expected ErrEmptyCredentials for empty new password, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Register("alice", "pw1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := s.Delete("alice", "wrong"); !errors.Is(err, ErrBadPassword) {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}
	if err := s.Delete("alice", "pw1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := s.Verify("alice", "pw1"); !errors.Is(err, ErrNoSuchAccount) {
		t.Fatalf("expected ErrNoSuchAccount after delete, got %v", err)
	}
	if err := s.Delete("alice", "pw1"); !errors.Is(err, ErrNoSuchAccount) {
		t.Fatalf("expected ErrNoSuchAccount for second delete, got %v", err)
	}
}

func TestProfilePersistsAcrossReload(t *testing.T) {
	s, path := newTestStore(t)
	if err := s.Register("alice", "pw1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := s.SetProfile("alice", "hello"); err != nil {
		t.Fatalf("set profile failed: %v", err)
	}

	// Fresh store against the same file simulates a server restart.
	reloaded := New(path, zerolog.Nop())
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	profile, err := reloaded.GetProfile("alice")
	if err != nil {
		t.Fatalf("get profile after reload failed: %v", err)
	}
	if profile != "hello" {
		t.Fatalf("expected profile %q, got %q", "hello", profile)
	}
	if err := reloaded.Verify("alice", "pw1"); err != nil {
		t.Fatalf("verify after reload failed: %v", err)
	}
}

func TestProfileWithCommasSurvivesReload(t *testing.T) {
	s, path := newTestStore(t)
	if err := s.Register("alice", "pw1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := s.SetProfile("alice", "a,b,c"); err != nil {
		t.Fatalf("set profile failed: %v", err)
	}

	reloaded := New(path, zerolog.Nop())
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	profile, err := reloaded.GetProfile("alice")
	if err != nil {
		t.Fatalf("get profile failed: %v", err)
	}
	if profile != "a,b,c" {
		t.Fatalf("expected profile %q, got %q", "a,b,c", profile)
	}
}

func TestFileFormatOneLinePerAccount(t *testing.T) {
	s, path := newTestStore(t)
	if err := s.Register("alice", "pw1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := s.Register("bob", "pw2"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := s.SetProfile("alice", "hello"); err != nil {
		t.Fatalf("set profile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read data file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), lines)
	}
	if lines[0] != "alice,pw1,hello" {
		t.Fatalf("unexpected first line: %q", lines[0])
	}
	if lines[1] != "bob,pw2," {
		t.Fatalf("unexpected second line: %q", lines[1])
	}
}

func TestPersistenceFailureKeepsMutation(t *testing.T) {
	// Point the store at a path whose parent does not exist: every save
	// fails, but mutations must still land in memory.
	path := filepath.Join(t.TempDir(), "missing-dir", "users.txt")
	s := New(path, zerolog.Nop())
	if err := s.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := s.Register("alice", "pw1"); err != nil {
		t.Fatalf("register should succeed despite save failure: %v", err)
	}
	if err := s.Verify("alice", "pw1"); err != nil {
		t.Fatalf("in-memory mutation lost: %v", err)
	}
}
