package playlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/cache"
	"github.com/parsascontentcorner/fansite/internal/models"
	"github.com/parsascontentcorner/fansite/internal/notify"
	"github.com/parsascontentcorner/fansite/internal/quota"
	"github.com/parsascontentcorner/fansite/internal/spotify"
	"github.com/parsascontentcorner/fansite/internal/testutil"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.TrackAdded
}

func (n *recordingNotifier) TrackAdded(event notify.TrackAdded) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []notify.TrackAdded {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.TrackAdded(nil), n.events...)
}

type fixture struct {
	svc      *Service
	store    *testutil.MemoryStore
	spotify  *testutil.MockSpotifyServer
	redis    *miniredis.Miniredis
	gateway  *cache.Gateway
	notifier *recordingNotifier
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	cfg := testutil.GenerateTestConfig()

	mock := testutil.NewMockSpotifyServer()
	t.Cleanup(mock.Close)
	client := spotify.NewClient(cfg, testutil.StaticToken{}, nil, logger)
	client.SetBaseURL(mock.URL())

	mr, rdb := testutil.NewRedis(t)
	gateway := cache.NewGateway(cache.NewStore(rdb, cfg.Cache.EntryTTL, logger), cfg.Cache.Freshness, nil, logger)
	t.Cleanup(gateway.Wait)

	store := testutil.NewMemoryStore()
	notifier := &recordingNotifier{}
	svc := NewService(store, client, quota.NewLimiter(rdb, cfg.Quota, logger), gateway, notifier, cfg.Security.PendingGrace, logger)

	return &fixture{svc: svc, store: store, spotify: mock, redis: mr, gateway: gateway, notifier: notifier}
}

func (f *fixture) account(t *testing.T, twitchID string, apply func(ctx context.Context, s *testutil.MemoryStore)) *models.Account {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.UpsertAccount(ctx, testutil.GenerateProfile(twitchID))
	require.NoError(t, err)
	if apply != nil {
		apply(ctx, f.store)
	}
	account, err := f.store.GetAccountByTwitchID(ctx, twitchID)
	require.NoError(t, err)
	return account
}

func (f *fixture) subscriber(t *testing.T, twitchID string, tier models.Tier) *models.Account {
	return f.account(t, twitchID, func(ctx context.Context, s *testutil.MemoryStore) {
		_, err := s.UpdateSubscription(ctx, twitchID, models.Subscription{IsSubscriber: true, Tier: tier})
		require.NoError(t, err)
	})
}

func (f *fixture) trusted(t *testing.T, twitchID string) *models.Account {
	f.subscriber(t, twitchID, models.Tier1)
	return f.account(t, twitchID, func(ctx context.Context, s *testutil.MemoryStore) {
		_, err := s.SetTrusted(ctx, twitchID, true)
		require.NoError(t, err)
	})
}

func (f *fixture) owner(t *testing.T) *models.Account {
	return f.account(t, testutil.BroadcasterID, func(ctx context.Context, s *testutil.MemoryStore) {
		_, err := s.SetOwner(ctx, testutil.BroadcasterID, true)
		require.NoError(t, err)
	})
}

func quotaKey(twitchID string) string {
	return fmt.Sprintf("ratelimit:%s:%s", twitchID, time.Now().UTC().Format("2006-01-02"))
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var perr *Error
	require.True(t, errors.As(err, &perr), "expected *playlist.Error, got %v", err)
	assert.Equal(t, status, perr.StatusCode(), perr.Message)
}

func TestAdd_NonSubscriberForbidden(t *testing.T) {
	f := setup(t)
	viewer := f.account(t, "3001", nil)

	_, err := f.svc.Add(context.Background(), viewer, testutil.TrackOne)

	requireStatus(t, err, http.StatusForbidden)
	assert.Equal(t, int32(0), f.spotify.AddCalls.Load())
	assert.False(t, f.redis.Exists(quotaKey("3001")))
}

func TestAdd_BannedSubscriberForbidden(t *testing.T) {
	f := setup(t)
	sub := f.subscriber(t, "3001", models.Tier3)
	sub.IsBanned = true

	_, err := f.svc.Add(context.Background(), sub, testutil.TrackOne)
	requireStatus(t, err, http.StatusForbidden)
}

func TestAdd_InvalidTrack(t *testing.T) {
	f := setup(t)
	owner := f.owner(t)

	_, err := f.svc.Add(context.Background(), owner, "https://example.com/track/nope")
	requireStatus(t, err, http.StatusBadRequest)
}

func TestAdd_AtCeilingRateLimited(t *testing.T) {
	f := setup(t)
	trusted := f.trusted(t, "3002")
	require.NoError(t, f.redis.Set(quotaKey("3002"), "3"))

	_, err := f.svc.Add(context.Background(), trusted, testutil.TrackOne)

	requireStatus(t, err, http.StatusTooManyRequests)
	got, _ := f.redis.Get(quotaKey("3002"))
	assert.Equal(t, "3", got, "counter must not move past the ceiling")
	assert.Equal(t, int32(0), f.spotify.AddCalls.Load())
}

func TestAdd_OwnerAddsDirectly(t *testing.T) {
	f := setup(t)
	owner := f.owner(t)
	ctx := context.Background()

	_, err := f.gateway.Store().Put(ctx, models.CacheTypePlaylist, map[string]string{"stale": "yes"})
	require.NoError(t, err)
	_, err = f.gateway.Store().Put(ctx, models.CacheTypeOwnership, map[string]string{"stale": "yes"})
	require.NoError(t, err)

	result, err := f.svc.Add(ctx, owner, "https://open.spotify.com/intl-de/track/4uLU6hMCjMI75M1A2tKUQC?si=abc")
	require.NoError(t, err)

	assert.False(t, result.Pending)
	assert.Equal(t, testutil.TrackOne, result.Track.ID)
	assert.Equal(t, 9, result.Remaining)
	assert.Equal(t, []string{testutil.TrackOne}, f.spotify.Playlist())

	entry, err := f.store.GetEntryByTrack(ctx, testutil.TrackOne)
	require.NoError(t, err)
	assert.True(t, entry.IsConfirmed())
	assert.Equal(t, owner.TwitchID, entry.TwitchID)

	assert.False(t, f.redis.Exists("cache:playlist"))
	assert.False(t, f.redis.Exists("cache:ownership"))

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Mr. Brightside", events[0].TrackName)
	assert.Equal(t, owner.DisplayName, events[0].AddedBy)
	assert.Empty(t, events[0].ApprovedBy)
}

func TestAdd_RoundTripOwnership(t *testing.T) {
	f := setup(t)
	trusted := f.trusted(t, "3003")
	ctx := context.Background()

	// warm the ownership cache before the add
	_, _, err := f.svc.Ownership(ctx)
	require.NoError(t, err)

	_, err = f.svc.Add(ctx, trusted, testutil.TrackTwo)
	require.NoError(t, err)

	raw, cached, err := f.svc.Ownership(ctx)
	require.NoError(t, err)
	assert.False(t, cached)

	var ownership models.Ownership
	require.NoError(t, json.Unmarshal(raw, &ownership))
	require.Contains(t, ownership, testutil.TrackTwo)
	assert.Equal(t, "3003", ownership[testutil.TrackTwo].AddedBy.TwitchID)
	assert.Equal(t, trusted.DisplayName, ownership[testutil.TrackTwo].AddedBy.DisplayName)
}

func TestAdd_SubscriberQueuedForApproval(t *testing.T) {
	f := setup(t)
	sub := f.subscriber(t, "3004", models.Tier2)
	ctx := context.Background()

	result, err := f.svc.Add(ctx, sub, "spotify:track:7GhIk7Il098yCjg4BQjzvb")
	require.NoError(t, err)

	assert.True(t, result.Pending)
	assert.Equal(t, 4, result.Remaining)
	assert.Equal(t, int32(0), f.spotify.AddCalls.Load())
	assert.Empty(t, f.notifier.Events())

	song, err := f.store.GetPendingSong(ctx, testutil.TrackTwo)
	require.NoError(t, err)
	assert.Equal(t, "Queen, David Bowie", song.TrackArtists)
	assert.Equal(t, "3004", song.AddedByTwitchID)

	_, err = f.svc.Add(ctx, sub, testutil.TrackTwo)
	requireStatus(t, err, http.StatusConflict)
}

func TestAdd_Duplicate(t *testing.T) {
	f := setup(t)
	owner := f.owner(t)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, owner, testutil.TrackOne)
	require.NoError(t, err)

	_, err = f.svc.Add(ctx, owner, testutil.TrackOne)
	requireStatus(t, err, http.StatusConflict)
	assert.Equal(t, int32(1), f.spotify.AddCalls.Load())
}

func TestAdd_UnknownTrack(t *testing.T) {
	f := setup(t)
	owner := f.owner(t)

	_, err := f.svc.Add(context.Background(), owner, "spotify:track:0000000000000000000000")
	requireStatus(t, err, http.StatusNotFound)
}

func TestAdd_UpstreamFailureReleasesEntry(t *testing.T) {
	f := setup(t)
	owner := f.owner(t)
	ctx := context.Background()
	f.spotify.FailAdds.Store(true)

	_, err := f.svc.Add(ctx, owner, testutil.TrackOne)
	requireStatus(t, err, http.StatusInternalServerError)

	_, err = f.store.GetEntryByTrack(ctx, testutil.TrackOne)
	assert.Error(t, err, "pending row removed after failed add")
	assert.False(t, f.redis.Exists(quotaKey(owner.TwitchID)), "failed adds are not counted")
	assert.Empty(t, f.notifier.Events())
}

func TestRemove_OtherAccountForbidden(t *testing.T) {
	f := setup(t)
	adder := f.trusted(t, "3005")
	other := f.trusted(t, "3006")
	ctx := context.Background()

	_, err := f.svc.Add(ctx, adder, testutil.TrackThree)
	require.NoError(t, err)

	err = f.svc.Remove(ctx, other, testutil.TrackThree)
	requireStatus(t, err, http.StatusForbidden)

	assert.Equal(t, []string{testutil.TrackThree}, f.spotify.Playlist())
	entry, err := f.store.GetEntryByTrack(ctx, testutil.TrackThree)
	require.NoError(t, err)
	assert.Equal(t, "3005", entry.TwitchID)
	assert.Equal(t, int32(0), f.spotify.RemoveCalls.Load())
}

func TestRemove_ByAdder(t *testing.T) {
	f := setup(t)
	adder := f.trusted(t, "3005")
	ctx := context.Background()

	_, err := f.svc.Add(ctx, adder, testutil.TrackThree)
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(ctx, adder, testutil.TrackThree))
	assert.Empty(t, f.spotify.Playlist())

	_, err = f.store.GetEntryByTrack(ctx, testutil.TrackThree)
	assert.Error(t, err)

	err = f.svc.Remove(ctx, adder, testutil.TrackThree)
	requireStatus(t, err, http.StatusNotFound)
}

func TestPending_ApproveAndDisapprove(t *testing.T) {
	f := setup(t)
	owner := f.owner(t)
	sub := f.subscriber(t, "3007", models.Tier1)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, sub, testutil.TrackOne)
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, sub, testutil.TrackTwo)
	require.NoError(t, err)

	_, err = f.svc.ListPending(ctx, sub)
	requireStatus(t, err, http.StatusForbidden)

	songs, err := f.svc.ListPending(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, songs, 2)

	song, err := f.svc.Approve(ctx, owner, testutil.TrackOne)
	require.NoError(t, err)
	assert.Equal(t, "3007", song.AddedByTwitchID)

	entry, err := f.store.GetEntryByTrack(ctx, testutil.TrackOne)
	require.NoError(t, err)
	assert.Equal(t, "3007", entry.TwitchID, "provenance belongs to the requester")
	assert.True(t, entry.IsConfirmed())

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, sub.DisplayName, events[0].AddedBy)
	assert.Equal(t, owner.DisplayName, events[0].ApprovedBy)

	require.NoError(t, f.svc.Disapprove(ctx, owner, testutil.TrackTwo))

	songs, err = f.svc.ListPending(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, songs)

	_, err = f.svc.Approve(ctx, owner, testutil.TrackTwo)
	requireStatus(t, err, http.StatusNotFound)
	err = f.svc.Disapprove(ctx, owner, testutil.TrackTwo)
	requireStatus(t, err, http.StatusNotFound)
}

func TestPending_DirectAddSettlesQueuedRequest(t *testing.T) {
	f := setup(t)
	owner := f.owner(t)
	sub := f.subscriber(t, "3008", models.Tier1)
	ctx := context.Background()

	result, err := f.svc.Add(ctx, sub, testutil.TrackOne)
	require.NoError(t, err)
	require.True(t, result.Pending)

	result, err = f.svc.Add(ctx, owner, testutil.TrackOne)
	require.NoError(t, err)
	assert.False(t, result.Pending)

	songs, err := f.svc.ListPending(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, songs)

	_, err = f.svc.Approve(ctx, owner, testutil.TrackOne)
	requireStatus(t, err, http.StatusNotFound)

	entry, err := f.store.GetEntryByTrack(ctx, testutil.TrackOne)
	require.NoError(t, err)
	assert.Equal(t, owner.TwitchID, entry.TwitchID)
}

func TestPlaylist_CachedRead(t *testing.T) {
	f := setup(t)
	f.spotify.SetPlaylist(testutil.TrackOne, testutil.TrackTwo, testutil.TrackThree)
	f.spotify.SetPageSize(2)
	ctx := context.Background()

	raw, cached, err := f.svc.Playlist(ctx)
	require.NoError(t, err)
	assert.False(t, cached)

	var playlist models.Playlist
	require.NoError(t, json.Unmarshal(raw, &playlist))
	assert.Len(t, playlist.Tracks, 3)
	assert.Equal(t, "Songs picked by chat & friends", playlist.Description)
	reads := f.spotify.ReadCalls.Load()

	_, cached, err = f.svc.Playlist(ctx)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, reads, f.spotify.ReadCalls.Load(), "fresh hit does not touch Spotify")
}

func TestReconcile(t *testing.T) {
	f := setup(t)
	owner := f.owner(t)
	ctx := context.Background()

	landed, err := f.store.ReserveEntry(ctx, testutil.TrackOne, owner.TwitchID)
	require.NoError(t, err)
	_, err = f.store.ReserveEntry(ctx, testutil.TrackTwo, owner.TwitchID)
	require.NoError(t, err)
	_, err = f.store.ReserveEntry(ctx, testutil.TrackThree, owner.TwitchID)
	require.NoError(t, err)

	f.spotify.SetPlaylist(testutil.TrackOne)
	f.store.AgeEntry(testutil.TrackOne, time.Hour)
	f.store.AgeEntry(testutil.TrackTwo, time.Hour)

	result, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Confirmed: 1, Removed: 1}, result)

	entry, err := f.store.GetEntryByTrack(ctx, testutil.TrackOne)
	require.NoError(t, err)
	assert.Equal(t, landed.ID, entry.ID)
	assert.True(t, entry.IsConfirmed())

	_, err = f.store.GetEntryByTrack(ctx, testutil.TrackTwo)
	assert.Error(t, err)

	// still within the grace window
	entry, err = f.store.GetEntryByTrack(ctx, testutil.TrackThree)
	require.NoError(t, err)
	assert.False(t, entry.IsConfirmed())
}

func TestReconcile_NothingStale(t *testing.T) {
	f := setup(t)

	result, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result)
	assert.Equal(t, int32(0), f.spotify.ReadCalls.Load())
}
