package fakebackend

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"parley/models"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNoRows      = errors.New("no rows found")
	ErrEmailExists = errors.New("email already exists")
)

// createdAtLayout matches the naive ISO stamps the real backend emits.
const createdAtLayout = "2006-01-02T15:04:05"

type user struct {
	models.Identity
	password []byte // bcrypt hash
}

// Store keeps users and messages in memory.
type Store struct {
	mu       sync.RWMutex
	users    map[int64]*user
	byEmail  map[string]int64
	messages []models.Message
	nextUser int64
	nextMsg  int64
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:   make(map[int64]*user),
		byEmail: make(map[string]int64),
		now:     time.Now,
	}
}

// CreateUser stores a new account and returns its identity.
func (s *Store) CreateUser(name, email, password string) (models.Identity, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return models.Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	if _, ok := s.byEmail[key]; ok {
		return models.Identity{}, ErrEmailExists
	}
	s.nextUser++
	u := &user{
		Identity: models.Identity{ID: s.nextUser, Name: name, Email: email},
		password: hashed,
	}
	s.users[u.ID] = u
	s.byEmail[key] = u.ID
	return u.Identity, nil
}

// Authenticate checks credentials. ok is false for unknown email or wrong
// password.
func (s *Store) Authenticate(email, password string) (models.Identity, bool) {
	s.mu.RLock()
	id, found := s.byEmail[strings.ToLower(email)]
	var u *user
	if found {
		u = s.users[id]
	}
	s.mu.RUnlock()
	if u == nil {
		return models.Identity{}, false
	}
	if err := bcrypt.CompareHashAndPassword(u.password, []byte(password)); err != nil {
		return models.Identity{}, false
	}
	return u.Identity, true
}

func (s *Store) User(id int64) (models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.Identity{}, ErrNoRows
	}
	return u.Identity, nil
}

// Others lists every user except id, ordered by name.
func (s *Store) Others(id int64) []models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Identity, 0, len(s.users))
	for uid, u := range s.users {
		if uid != id {
			out = append(out, u.Identity)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SaveMessage stores a message and returns it joined with both names.
func (s *Store) SaveMessage(senderID, receiverID int64, text string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sender, ok := s.users[senderID]
	if !ok {
		return models.Message{}, ErrNoRows
	}
	receiver, ok := s.users[receiverID]
	if !ok {
		return models.Message{}, ErrNoRows
	}
	s.nextMsg++
	m := models.Message{
		ID:           s.nextMsg,
		SenderID:     senderID,
		ReceiverID:   receiverID,
		Text:         text,
		CreatedAt:    s.now().UTC().Format(createdAtLayout),
		SenderName:   sender.Name,
		ReceiverName: receiver.Name,
	}
	s.messages = append(s.messages, m)
	return m, nil
}

// Messages returns the conversation between a and b in insertion order.
func (s *Store) Messages(a, b int64) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, 0)
	for _, m := range s.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	return out
}
