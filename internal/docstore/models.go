// Package docstore persists care-assistant user records. The primary backend
// is a Firebase-style JSON REST database; sqlite and in-memory backends serve
// offline development and tests.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store reads and writes user records keyed by username.
type Store interface {
	GetUser(ctx context.Context, username string) (User, error)
	PutUser(ctx context.Context, u User) error
	PutHistory(ctx context.Context, username string, history []HistoryEntry) error
	Close() error
}

// User is a registered account and its question history.
type User struct {
	Username string         `json:"-"`
	Password string         `json:"password"`
	Fullname string         `json:"fullname"`
	History  []HistoryEntry `json:"history"`
}

// Kind tells how a history entry was asked.
type Kind string

const (
	KindQuestion Kind = "question"
	KindFollowup Kind = "followup"
	KindMoreInfo Kind = "more_info"
)

var kindPrefixes = map[Kind]string{
	KindQuestion: "🌱 Q: ",
	KindFollowup: "🔁 Follow-up Q: ",
	KindMoreInfo: "📌 More Info Q: ",
}

const answerSep = "\n\n📝 A: "

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindPrefixes[k]
	return ok
}

// HistoryEntry is one question and its answer.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEntry creates an entry with a fresh ID.
func NewEntry(kind Kind, question, answer string) HistoryEntry {
	return HistoryEntry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Question:  question,
		Answer:    answer,
		CreatedAt: time.Now().UTC(),
	}
}

// Text renders the entry the way it is shown in the history page.
func (e HistoryEntry) Text() string {
	prefix, ok := kindPrefixes[e.Kind]
	if !ok {
		prefix = kindPrefixes[KindQuestion]
	}
	return prefix + e.Question + answerSep + e.Answer
}

// UnmarshalJSON also accepts the older plain-string form, where each entry
// was stored as its rendered text. Such entries decode without an ID;
// normalizeHistory assigns one.
func (e *HistoryEntry) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*e = parseLegacyEntry(text)
		return nil
	}
	type plain HistoryEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decoding history entry: %w", err)
	}
	*e = HistoryEntry(p)
	return nil
}

func parseLegacyEntry(text string) HistoryEntry {
	e := HistoryEntry{Kind: KindQuestion}
	body := text
	for kind, prefix := range kindPrefixes {
		if rest, ok := strings.CutPrefix(text, prefix); ok {
			e.Kind = kind
			body = rest
			break
		}
	}
	q, a, found := strings.Cut(body, answerSep)
	if !found {
		e.Question = body
		return e
	}
	e.Question, e.Answer = q, a
	return e
}

// normalizeHistory drops null entries and gives entries stored without an
// ID one derived from their position and text. The derived IDs are stable
// until the history is next written, which persists them.
func normalizeHistory(h []HistoryEntry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(h))
	for i, e := range h {
		if e == (HistoryEntry{}) {
			continue
		}
		if e.ID == "" {
			name := strconv.Itoa(i) + "\x00" + e.Text()
			e.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
		}
		out = append(out, e)
	}
	return out
}
