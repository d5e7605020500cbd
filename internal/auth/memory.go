package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/handihand/backend/internal/models"
	"github.com/handihand/backend/internal/repositories"
)

// MemoryAccountStore is a mutex-guarded AccountStore for tests and local
// development. Unlike the SQL store, which hashes inside the database, this
// one hashes with bcrypt in process.
type MemoryAccountStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]models.Account
	hashes   map[int64][]byte
}

// NewMemoryAccountStore returns an empty in-memory account store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		nextID:   1,
		accounts: make(map[int64]models.Account),
		hashes:   make(map[int64][]byte),
	}
}

func (s *MemoryAccountStore) Create(_ context.Context, identityType models.IdentityType, identityValue, password, state string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acct := range s.accounts {
		if acct.IdentityType == identityType && acct.IdentityValue == identityValue {
			return 0, repositories.ErrConflict
		}
	}

	id := s.nextID
	s.nextID++
	s.accounts[id] = models.Account{
		ID:            id,
		IdentityType:  identityType,
		IdentityValue: identityValue,
		State:         state,
		CreatedAt:     time.Now().UTC(),
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			delete(s.accounts, id)
			return 0, err
		}
		s.hashes[id] = hash
	}
	return id, nil
}

func (s *MemoryAccountStore) FindByIdentity(_ context.Context, identityType models.IdentityType, identityValue string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acct := range s.accounts {
		if acct.IdentityType == identityType && acct.IdentityValue == identityValue {
			return acct, nil
		}
	}
	return models.Account{}, repositories.ErrNotFound
}

func (s *MemoryAccountStore) FindByID(_ context.Context, id int64) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return models.Account{}, repositories.ErrNotFound
	}
	return acct, nil
}

func (s *MemoryAccountStore) SetState(_ context.Context, id int64, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return repositories.ErrNotFound
	}
	acct.State = state
	s.accounts[id] = acct
	return nil
}

func (s *MemoryAccountStore) VerifyPassword(_ context.Context, email, password string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, acct := range s.accounts {
		if acct.IdentityType != models.IdentityEmail || acct.IdentityValue != email {
			continue
		}
		hash, ok := s.hashes[id]
		if !ok {
			return models.Account{}, repositories.ErrNotFound
		}
		if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
			return models.Account{}, repositories.ErrNotFound
		}
		return acct, nil
	}
	return models.Account{}, repositories.ErrNotFound
}

func (s *MemoryAccountStore) EnsureVerifiedByEmail(_ context.Context, email string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, acct := range s.accounts {
		if acct.IdentityType == models.IdentityEmail && acct.IdentityValue == email {
			if acct.State != models.AccountStateVerified {
				acct.State = models.AccountStateVerified
				s.accounts[id] = acct
			}
			return acct, nil
		}
	}

	id := s.nextID
	s.nextID++
	acct := models.Account{
		ID:            id,
		IdentityType:  models.IdentityEmail,
		IdentityValue: email,
		State:         models.AccountStateVerified,
		CreatedAt:     time.Now().UTC(),
	}
	s.accounts[id] = acct
	return acct, nil
}

// MemorySessionStore is a mutex-guarded SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

// NewMemorySessionStore returns an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]models.Session)}
}

func (s *MemorySessionStore) Create(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return repositories.ErrConflict
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *MemorySessionStore) Find(_ context.Context, sessionID string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return models.Session{}, repositories.ErrNotFound
	}
	return session, nil
}

func (s *MemorySessionStore) Extend(_ context.Context, sessionID string, expiresAt, refreshedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return repositories.ErrNotFound
	}
	session.ExpiresAt = expiresAt
	session.RefreshedAt = refreshedAt
	s.sessions[sessionID] = session
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// MemoryTokenStore is a mutex-guarded TokenStore.
type MemoryTokenStore struct {
	mu     sync.Mutex
	nextID int64
	tokens map[int64]models.VerificationToken
}

// NewMemoryTokenStore returns an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{nextID: 1, tokens: make(map[int64]models.VerificationToken)}
}

func (s *MemoryTokenStore) Issue(_ context.Context, tok *models.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok.ID = s.nextID
	s.nextID++
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}
	s.tokens[tok.ID] = *tok
	return nil
}

func (s *MemoryTokenStore) Consume(_ context.Context, code string, kind models.TokenKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, tok := range s.tokens {
		if tok.Code == code && tok.Kind == kind {
			delete(s.tokens, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryTokenStore) ConsumeForSession(_ context.Context, code, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, tok := range s.tokens {
		if tok.Code == code && tok.Kind == models.TokenSessionCSRF && tok.SessionID == sessionID {
			delete(s.tokens, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryTokenStore) FindEmailVerification(_ context.Context, email, code string) (models.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found models.VerificationToken
	ok := false
	for _, tok := range s.tokens {
		if tok.Kind != models.TokenEmailVerify || tok.Email != email || tok.Code != code {
			continue
		}
		if !ok || tok.CreatedAt.After(found.CreatedAt) {
			found = tok
			ok = true
		}
	}
	if !ok {
		return models.VerificationToken{}, repositories.ErrNotFound
	}
	return found, nil
}

func (s *MemoryTokenStore) DeleteByID(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.tokens, id)
	return nil
}

// Count reports how many tokens of the given kind are outstanding.
func (s *MemoryTokenStore) Count(kind models.TokenKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, tok := range s.tokens {
		if tok.Kind == kind {
			n++
		}
	}
	return n
}

// Backdate rewinds the creation time of the token with the given code,
// letting tests age a token past its window.
func (s *MemoryTokenStore) Backdate(code string, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, tok := range s.tokens {
		if tok.Code == code {
			tok.CreatedAt = createdAt
			s.tokens[id] = tok
		}
	}
}

// MemoryProfileStore is a mutex-guarded ProfileStore.
type MemoryProfileStore struct {
	mu       sync.Mutex
	nextID   int64
	profiles map[int64]models.Profile
}

// NewMemoryProfileStore returns an empty in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{nextID: 1, profiles: make(map[int64]models.Profile)}
}

func (s *MemoryProfileStore) Create(_ context.Context, profile models.Profile) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUsername(profile.Username, 0); err != nil {
		return 0, err
	}
	profile.ID = s.nextID
	s.nextID++
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	s.profiles[profile.ID] = profile
	return profile.ID, nil
}

func (s *MemoryProfileStore) FindLatestByAccount(_ context.Context, accountID int64) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found models.Profile
	ok := false
	for _, p := range s.profiles {
		if p.AccountID != accountID {
			continue
		}
		if !ok || p.CreatedAt.After(found.CreatedAt) || (p.CreatedAt.Equal(found.CreatedAt) && p.ID > found.ID) {
			found = p
			ok = true
		}
	}
	if !ok {
		return models.Profile{}, repositories.ErrNotFound
	}
	return found, nil
}

func (s *MemoryProfileStore) Update(_ context.Context, profile models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.profiles[profile.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if err := s.checkUsername(profile.Username, profile.ID); err != nil {
		return err
	}
	profile.AccountID = existing.AccountID
	profile.CreatedAt = existing.CreatedAt
	profile.UpdatedAt = time.Now().UTC()
	s.profiles[profile.ID] = profile
	return nil
}

func (s *MemoryProfileStore) SetPhoto(_ context.Context, id int64, photo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[id]
	if !ok {
		return repositories.ErrNotFound
	}
	profile.Photo = photo
	profile.UpdatedAt = time.Now().UTC()
	s.profiles[id] = profile
	return nil
}

func (s *MemoryProfileStore) checkUsername(username string, selfID int64) error {
	if username == "" {
		return nil
	}
	for id, p := range s.profiles {
		if id != selfID && p.Username == username {
			return repositories.ErrConflict
		}
	}
	return nil
}

// RecordingEmailSender captures dispatched verification emails for tests.
type RecordingEmailSender struct {
	mu   sync.Mutex
	sent []SentEmail

	// FailWith, when set, is returned by SendVerification instead of
	// recording the message.
	FailWith error
}

// SentEmail is one captured verification dispatch.
type SentEmail struct {
	To   string
	Link string
}

func (r *RecordingEmailSender) SendVerification(_ context.Context, to, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailWith != nil {
		return r.FailWith
	}
	r.sent = append(r.sent, SentEmail{To: to, Link: link})
	return nil
}

// Sent returns a copy of every captured email in dispatch order.
func (r *RecordingEmailSender) Sent() []SentEmail {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SentEmail, len(r.sent))
	copy(out, r.sent)
	return out
}
