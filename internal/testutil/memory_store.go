package testutil

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/parsascontentcorner/fansite/internal/database"
	"github.com/parsascontentcorner/fansite/internal/models"
)

// MemoryStore is an in-memory stand-in for database.DB with the same
// sentinel errors. Returned records are copies.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	accounts  map[string]*models.Account
	apologies map[string]*models.Apology
	entries   map[string]*models.PlaylistEntry
	pending   map[string]*models.PendingSong
	states    map[string]*models.OAuthState

	// FailWrites, when set, is returned by every write
	FailWrites error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*models.Account),
		apologies: make(map[string]*models.Apology),
		entries:   make(map[string]*models.PlaylistEntry),
		pending:   make(map[string]*models.PendingSong),
		states:    make(map[string]*models.OAuthState),
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	return &c
}

// Accounts

func (s *MemoryStore) UpsertAccount(_ context.Context, p *models.AccountProfile) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}

	now := time.Now()
	a, ok := s.accounts[p.TwitchID]
	if !ok {
		a = &models.Account{ID: s.id(), TwitchID: p.TwitchID, CreatedAt: now}
		s.accounts[p.TwitchID] = a
	}
	a.DisplayName = p.DisplayName
	a.SessionID = p.SessionID
	a.UpdatedAt = now
	return copyAccount(a), nil
}

func (s *MemoryStore) GetAccountBySession(_ context.Context, sessionID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.SessionID == sessionID {
			return copyAccount(a), nil
		}
	}
	return nil, database.ErrAccountNotFound
}

func (s *MemoryStore) GetAccountByTwitchID(_ context.Context, twitchID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[twitchID]
	if !ok {
		return nil, database.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (s *MemoryStore) update(twitchID string, apply func(a *models.Account)) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
	a, ok := s.accounts[twitchID]
	if !ok {
		return nil, database.ErrAccountNotFound
	}
	apply(a)
	a.UpdatedAt = time.Now()
	return copyAccount(a), nil
}

func (s *MemoryStore) UpdateSubscription(_ context.Context, twitchID string, sub models.Subscription) (*models.Account, error) {
	return s.update(twitchID, func(a *models.Account) {
		a.IsSubscriber = sub.IsSubscriber
		a.IsGiftedSub = sub.IsGift
		a.SubscriptionTier = sql.NullString{}
		if sub.IsSubscriber && sub.Tier != models.TierNone {
			a.SubscriptionTier = sql.NullString{String: sub.Tier.String(), Valid: true}
		}
	})
}

func (s *MemoryStore) SetOwner(_ context.Context, twitchID string, owner bool) (*models.Account, error) {
	return s.update(twitchID, func(a *models.Account) { a.IsOwner = owner })
}

func (s *MemoryStore) SetTrusted(_ context.Context, twitchID string, trusted bool) (*models.Account, error) {
	return s.update(twitchID, func(a *models.Account) { a.IsTrusted = trusted })
}

func (s *MemoryStore) SetBanned(_ context.Context, twitchID string, banned bool, rotatedSession string) (*models.Account, error) {
	return s.update(twitchID, func(a *models.Account) {
		a.IsBanned = banned
		if banned {
			a.SessionID = rotatedSession
		}
	})
}

func (s *MemoryStore) CountAccounts(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts), nil
}

// Apologies

func (s *MemoryStore) EnsureApology(_ context.Context, twitchID, username, sessionID string) (*models.Apology, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
	ap, ok := s.apologies[twitchID]
	if !ok {
		now := time.Now()
		ap = &models.Apology{ID: s.id(), TwitchID: twitchID, CreatedAt: now, UpdatedAt: now}
		s.apologies[twitchID] = ap
	}
	ap.TwitchUsername = username
	ap.SessionID = sql.NullString{String: sessionID, Valid: true}
	c := *ap
	return &c, nil
}

func (s *MemoryStore) SubmitApology(_ context.Context, apology *models.Apology) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	now := time.Now()
	existing, ok := s.apologies[apology.TwitchID]
	if ok {
		apology.ID = existing.ID
		apology.CreatedAt = existing.CreatedAt
	} else {
		apology.ID = s.id()
		apology.CreatedAt = now
	}
	apology.UpdatedAt = now
	c := *apology
	s.apologies[apology.TwitchID] = &c
	return nil
}

func (s *MemoryStore) GetApologyByTwitchID(_ context.Context, twitchID string) (*models.Apology, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ap, ok := s.apologies[twitchID]
	if !ok {
		return nil, database.ErrApologyNotFound
	}
	c := *ap
	return &c, nil
}

func (s *MemoryStore) ListPublishedApologies(_ context.Context, limit, offset int) ([]*models.Apology, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var published []*models.Apology
	for _, ap := range s.apologies {
		if ap.HasContent() {
			c := *ap
			published = append(published, &c)
		}
	}
	sort.Slice(published, func(i, j int) bool {
		if published[i].UpdatedAt.Equal(published[j].UpdatedAt) {
			return published[i].ID > published[j].ID
		}
		return published[i].UpdatedAt.After(published[j].UpdatedAt)
	})

	total := len(published)
	if offset >= total {
		return []*models.Apology{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return published[offset:end], total, nil
}

// Provenance

func (s *MemoryStore) ReserveEntry(_ context.Context, trackURI, twitchID string) (*models.PlaylistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
	if _, ok := s.entries[trackURI]; ok {
		return nil, database.ErrDuplicateEntry
	}
	e := &models.PlaylistEntry{ID: s.id(), TrackURI: trackURI, TwitchID: twitchID, Status: models.EntryPending, CreatedAt: time.Now()}
	s.entries[trackURI] = e
	c := *e
	return &c, nil
}

func (s *MemoryStore) entryByID(id int64) (*models.PlaylistEntry, bool) {
	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

func (s *MemoryStore) ConfirmEntry(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	e, ok := s.entryByID(id)
	if !ok {
		return database.ErrEntryNotFound
	}
	e.Status = models.EntryConfirmed
	e.ConfirmedAt = sql.NullTime{Time: time.Now(), Valid: true}
	return nil
}

func (s *MemoryStore) DeleteEntry(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entryByID(id)
	if !ok {
		return database.ErrEntryNotFound
	}
	delete(s.entries, e.TrackURI)
	return nil
}

func (s *MemoryStore) GetEntryByTrack(_ context.Context, trackURI string) (*models.PlaylistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[trackURI]
	if !ok {
		return nil, database.ErrEntryNotFound
	}
	c := *e
	return &c, nil
}

func (s *MemoryStore) GetOwnership(_ context.Context) (models.Ownership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ownership := make(models.Ownership)
	for uri, e := range s.entries {
		if !e.IsConfirmed() {
			continue
		}
		adder := models.Adder{TwitchID: e.TwitchID}
		if a, ok := s.accounts[e.TwitchID]; ok {
			adder.DisplayName = a.DisplayName
		}
		ownership[uri] = models.OwnershipRecord{AddedBy: adder}
	}
	return ownership, nil
}

func (s *MemoryStore) ListStalePendingEntries(_ context.Context, grace time.Duration) ([]*models.PlaylistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-grace)
	var entries []*models.PlaylistEntry
	for _, e := range s.entries {
		if e.Status == models.EntryPending && e.CreatedAt.Before(cutoff) {
			c := *e
			entries = append(entries, &c)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, nil
}

// AgeEntry moves an entry's creation time into the past
func (s *MemoryStore) AgeEntry(trackURI string, age time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[trackURI]; ok {
		e.CreatedAt = e.CreatedAt.Add(-age)
	}
}

// Pending songs

func (s *MemoryStore) CreatePendingSong(_ context.Context, song *models.PendingSong) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	if _, ok := s.pending[song.SpotifyID]; ok {
		return database.ErrDuplicateEntry
	}
	song.ID = s.id()
	song.CreatedAt = time.Now()
	c := *song
	s.pending[song.SpotifyID] = &c
	return nil
}

func (s *MemoryStore) ListPendingSongs(_ context.Context) ([]*models.PendingSong, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	songs := make([]*models.PendingSong, 0, len(s.pending))
	for _, song := range s.pending {
		c := *song
		songs = append(songs, &c)
	}
	sort.Slice(songs, func(i, j int) bool { return songs[i].ID < songs[j].ID })
	return songs, nil
}

func (s *MemoryStore) GetPendingSong(_ context.Context, spotifyID string) (*models.PendingSong, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	song, ok := s.pending[spotifyID]
	if !ok {
		return nil, database.ErrPendingSongNotFound
	}
	c := *song
	return &c, nil
}

func (s *MemoryStore) DeletePendingSong(_ context.Context, spotifyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[spotifyID]; !ok {
		return database.ErrPendingSongNotFound
	}
	delete(s.pending, spotifyID)
	return nil
}

// OAuth states

func (s *MemoryStore) CreateOAuthState(_ context.Context, state *models.OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.CreatedAt = time.Now()
	c := *state
	s.states[state.State] = &c
	return nil
}

func (s *MemoryStore) ValidateAndDeleteOAuthState(_ context.Context, state string) (*models.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[state]
	if !ok {
		return nil, database.ErrStateNotFound
	}
	delete(s.states, state)
	if st.IsExpired() {
		return nil, database.ErrStateExpired
	}
	return st, nil
}
