// Package care implements the plant-care assistant: accounts, questions
// answered by a language model, and each user's question history.
package care

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kalambet/sprout/internal/docstore"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("wrong username or password")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrMissingPassword    = errors.New("password is required")
	ErrEmptyQuestion      = errors.New("question is empty")
)

// Asker answers a free-text question. Implementations report failures
// inside the returned text rather than as an error.
type Asker interface {
	Ask(ctx context.Context, text string) string
}

// Service holds the care assistant's operations.
type Service struct {
	store  docstore.Store
	asker  Asker
	locks  *keyedMutex
	logger *slog.Logger
}

func NewService(store docstore.Store, asker Asker) *Service {
	return &Service{
		store:  store,
		asker:  asker,
		locks:  newKeyedMutex(),
		logger: slog.Default(),
	}
}

// NormalizeUsername lowercases and trims a username and checks it can be
// used as a document key.
func NormalizeUsername(username string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(username))
	if u == "" || strings.ContainsAny(u, "/.#$[]") || strings.ContainsFunc(u, isControl) {
		return "", ErrInvalidUsername
	}
	return u, nil
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

// Signup creates a new account.
func (s *Service) Signup(ctx context.Context, username, password, fullname string) (docstore.User, error) {
	name, err := NormalizeUsername(username)
	if err != nil {
		return docstore.User{}, err
	}
	if password == "" {
		return docstore.User{}, ErrMissingPassword
	}

	unlock := s.locks.Lock(name)
	defer unlock()

	if _, err := s.store.GetUser(ctx, name); err == nil {
		return docstore.User{}, ErrUsernameTaken
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return docstore.User{}, fmt.Errorf("looking up user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return docstore.User{}, err
	}
	u := docstore.User{
		Username: name,
		Password: hash,
		Fullname: strings.TrimSpace(fullname),
		History:  []docstore.HistoryEntry{},
	}
	if err := s.store.PutUser(ctx, u); err != nil {
		return docstore.User{}, fmt.Errorf("saving user: %w", err)
	}
	s.logger.Info("user signed up", "username", name)
	return u, nil
}

// Login checks credentials and returns the account. Records still holding a
// legacy plaintext password are upgraded to a hash on success.
func (s *Service) Login(ctx context.Context, username, password string) (docstore.User, error) {
	name, err := NormalizeUsername(username)
	if err != nil {
		return docstore.User{}, ErrInvalidCredentials
	}

	u, err := s.store.GetUser(ctx, name)
	if errors.Is(err, docstore.ErrNotFound) {
		return docstore.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return docstore.User{}, fmt.Errorf("looking up user: %w", err)
	}

	ok, legacy := CheckPassword(u.Password, password)
	if !ok {
		return docstore.User{}, ErrInvalidCredentials
	}
	if legacy {
		s.upgradePassword(ctx, name, password)
	}
	return u, nil
}

func (s *Service) upgradePassword(ctx context.Context, name, password string) {
	unlock := s.locks.Lock(name)
	defer unlock()

	hash, err := HashPassword(password)
	if err != nil {
		s.logger.Warn("hashing legacy password", "username", name, "error", err)
		return
	}
	u, err := s.store.GetUser(ctx, name)
	if err != nil {
		s.logger.Warn("reloading user for password upgrade", "username", name, "error", err)
		return
	}
	u.Password = hash
	if err := s.store.PutUser(ctx, u); err != nil {
		s.logger.Warn("saving upgraded password", "username", name, "error", err)
		return
	}
	s.logger.Info("upgraded legacy password", "username", name)
}

// Profile returns the account without checking credentials.
func (s *Service) Profile(ctx context.Context, username string) (docstore.User, error) {
	return s.store.GetUser(ctx, username)
}

// History returns the user's entries in insertion order.
func (s *Service) History(ctx context.Context, username string) ([]docstore.HistoryEntry, error) {
	u, err := s.store.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if u.History == nil {
		return []docstore.HistoryEntry{}, nil
	}
	return u.History, nil
}

// Search answers query and records it in the user's history.
func (s *Service) Search(ctx context.Context, username, query string) (docstore.HistoryEntry, error) {
	if strings.TrimSpace(query) == "" {
		return docstore.HistoryEntry{}, ErrEmptyQuestion
	}
	entry := docstore.NewEntry(docstore.KindQuestion, query, s.asker.Ask(ctx, query))
	err := s.mutate(ctx, username, func(h []docstore.HistoryEntry) ([]docstore.HistoryEntry, bool) {
		return append(h, entry), true
	})
	if err != nil {
		return docstore.HistoryEntry{}, err
	}
	return entry, nil
}

// Reply answers a follow-up to the entry addressed by ref and records it.
// The reply is kept even when ref no longer resolves; it then has no parent.
func (s *Service) Reply(ctx context.Context, username, ref, text string, kind docstore.Kind) (docstore.HistoryEntry, error) {
	if !kind.Valid() || kind == docstore.KindQuestion {
		return docstore.HistoryEntry{}, fmt.Errorf("invalid reply kind %q", kind)
	}
	if strings.TrimSpace(text) == "" {
		return docstore.HistoryEntry{}, ErrEmptyQuestion
	}
	entry := docstore.NewEntry(kind, text, s.asker.Ask(ctx, text))
	err := s.mutate(ctx, username, func(h []docstore.HistoryEntry) ([]docstore.HistoryEntry, bool) {
		if i := Resolve(h, ref); i >= 0 {
			entry.ParentID = h[i].ID
		}
		return append(h, entry), true
	})
	if err != nil {
		return docstore.HistoryEntry{}, err
	}
	return entry, nil
}

// Delete removes the entry addressed by ref. It reports false, and writes
// nothing, when ref does not resolve.
func (s *Service) Delete(ctx context.Context, username, ref string) (bool, error) {
	deleted := false
	err := s.mutate(ctx, username, func(h []docstore.HistoryEntry) ([]docstore.HistoryEntry, bool) {
		i := Resolve(h, ref)
		if i < 0 {
			return h, false
		}
		deleted = true
		return append(h[:i:i], h[i+1:]...), true
	})
	return deleted, err
}

// mutate runs a read-modify-write of one user's history under that user's
// lock. fn reports whether the result should be written back.
func (s *Service) mutate(ctx context.Context, username string, fn func([]docstore.HistoryEntry) ([]docstore.HistoryEntry, bool)) error {
	unlock := s.locks.Lock(username)
	defer unlock()

	u, err := s.store.GetUser(ctx, username)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	next, changed := fn(u.History)
	if !changed {
		return nil
	}
	if err := s.store.PutHistory(ctx, username, next); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

// Resolve finds the entry addressed by ref: an entry ID, or else a
// zero-based decimal index. It returns -1 when nothing matches.
func Resolve(h []docstore.HistoryEntry, ref string) int {
	if ref == "" {
		return -1
	}
	for i, e := range h {
		if e.ID == ref {
			return i
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 0 && n < len(h) {
		return n
	}
	return -1
}
