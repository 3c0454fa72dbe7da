package store

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrAccountExists    = errors.New("account id already exists")
	ErrEmptyCredentials = errors.New("account id and password must not be empty")
	ErrNoSuchAccount    = errors.New("account does not exist")
	ErrBadPassword      = errors.New("wrong password")
)

// Account is a persisted identity record. Passwords are stored and
// compared in plaintext; that is the existing contract of the data file,
// not an oversight to fix here.
type Account struct {
	ID       string
	Password string
	Profile  string
}

// serialize renders the account as one CSV line: id,password,profile.
func (a Account) serialize() string {
	return a.ID + "," + a.Password + "," + a.Profile
}

// parseAccount restores an account from its CSV line. The profile is
// everything after the second comma, so it may itself contain commas.
func parseAccount(line string) Account {
	parts := strings.SplitN(line, ",", 3)
	acc := Account{ID: parts[0]}
	if len(parts) > 1 {
		acc.Password = parts[1]
	}
	if len(parts) > 2 {
		acc.Profile = parts[2]
	}
	return acc
}

// Store is the shared account table. One exclusive lock guards the map
// and the backing file together: every mutating operation is a single
// critical section of "check, mutate, persist", so file writes are
// serialized and a concurrent duplicate register cannot slip through.
type Store struct {
	mu       sync.Mutex
	path     string
	accounts map[string]Account
	log      zerolog.Logger
}

// New creates a store backed by the given file path. Call Load before
// serving to pick up existing records.
func New(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:     path,
		accounts: make(map[string]Account),
		log:      logger.With().Str("component", "store").Logger(),
	}
}

// Load reads the backing file into memory. A missing file is not an
// error: the store simply starts empty. Load is idempotent; calling it
// again replaces the in-memory table with the file contents.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open account file: %w", err)
	}
	defer f.Close()

	accounts := make(map[string]Account)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		acc := parseAccount(line)
		accounts[acc.ID] = acc
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read account file: %w", err)
	}

	s.accounts = accounts
	s.log.Info().Int("accounts", len(accounts)).Str("path", s.path).Msg("account data loaded")
	return nil
}

// saveLocked rewrites the whole backing file from the in-memory table.
// Caller must hold s.mu. A write failure is logged and swallowed: the
// in-memory mutation stands and the server keeps running.
func (s *Store) saveLocked() {
	f, err := os.Create(s.path)
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("failed to save account data")
		return
	}
	defer f.Close()

	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := bufio.NewWriter(f)
	for _, id := range ids {
		if _, err := w.WriteString(s.accounts[id].serialize() + "\n"); err != nil {
			s.log.Warn().Err(err).Str("path", s.path).Msg("failed to write account data")
			return
		}
	}
	if err := w.Flush(); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("failed to flush account data")
	}
}

// Register creates a new account and persists the table.
func (s *Store) Register(id, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; ok {
		return ErrAccountExists
	}
	if id == "" || password == "" {
		return ErrEmptyCredentials
	}

	s.accounts[id] = Account{ID: id, Password: password}
	s.saveLocked()
	return nil
}

// Verify checks the supplied credentials by exact string comparison.
// It has no side effects.
func (s *Store) Verify(id, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyLocked(id, password)
}

func (s *Store) verifyLocked(id, password string) error {
	acc, ok := s.accounts[id]
	if !ok {
		return ErrNoSuchAccount
	}
	if acc.Password != password {
		return ErrBadPassword
	}
	return nil
}

// SetProfile replaces the account's profile string and persists.
func (s *Store) SetProfile(id, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return ErrNoSuchAccount
	}
	acc.Profile = value
	s.accounts[id] = acc
	s.saveLocked()
	return nil
}

// GetProfile returns the account's profile string.
func (s *Store) GetProfile(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return "", ErrNoSuchAccount
	}
	return acc.Profile, nil
}

// ChangePassword updates the password after verifying the old one.
func (s *Store) ChangePassword(id, oldPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if oldPassword == "" || newPassword == "" {
		return ErrEmptyCredentials
	}
	if err := s.verifyLocked(id, oldPassword); err != nil {
		return err
	}

	acc := s.accounts[id]
	acc.Password = newPassword
	s.accounts[id] = acc
	s.saveLocked()
	return nil
}

// Delete removes the account after verifying the password.
func (s *Store) Delete(id, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.verifyLocked(id, password); err != nil {
		return err
	}

	delete(s.accounts, id)
	s.saveLocked()
	return nil
}

// Count returns the number of accounts.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}
