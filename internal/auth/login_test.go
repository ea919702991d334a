package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/models"
	"github.com/parsascontentcorner/fansite/internal/testutil"
	"github.com/parsascontentcorner/fansite/internal/twitch"
)

type staticBroadcaster struct{}

func (staticBroadcaster) Token(_ context.Context) (*models.UpstreamToken, error) {
	return testutil.GenerateUpstreamToken(testutil.BroadcasterID), nil
}

func setupLogin(t *testing.T, broadcaster twitch.TokenProvider) (*Service, *testutil.MemoryStore, *testutil.MockTwitchServer) {
	t.Helper()
	mock := testutil.NewMockTwitchServer()
	t.Cleanup(mock.Close)

	logger, _ := zap.NewDevelopment()
	client := twitch.NewClient(testutil.GenerateTestConfig(), broadcaster, nil, logger)
	client.SetBaseURL(mock.URL())

	store := testutil.NewMemoryStore()
	return NewService(store, client, testutil.BroadcasterID, logger), store, mock
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var authErr *Error
	require.True(t, errors.As(err, &authErr), "expected *auth.Error, got %v", err)
	return authErr.StatusCode()
}

func TestLogin_MissingParams(t *testing.T) {
	svc, _, _ := setupLogin(t, nil)

	_, err := svc.Login(context.Background(), "", "http://localhost/callback")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	assert.EqualError(t, err, "No Twitch auth code provided")

	_, err = svc.Login(context.Background(), "code", "")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	assert.EqualError(t, err, "No redirect URL provided")
}

func TestLogin_NewViewer(t *testing.T) {
	svc, store, mock := setupLogin(t, staticBroadcaster{})
	mock.AddViewer("code_a", "2001", "ViewerA")

	result, err := svc.Login(context.Background(), "code_a", "http://localhost/callback")
	require.NoError(t, err)

	assert.Equal(t, "2001", result.Account.TwitchID)
	assert.Equal(t, "ViewerA", result.Account.DisplayName)
	assert.NotEmpty(t, result.Account.SessionID)
	testutil.AssertAccountRoles(t, result.Account, false, false, false, false)

	require.NotNil(t, result.Apology)
	assert.Equal(t, result.Account.SessionID, result.Apology.SessionID.String)
	_, err = store.GetApologyByTwitchID(context.Background(), "2001")
	assert.NoError(t, err)

	assert.Equal(t, int32(1), mock.TokenCalls.Load())
	assert.Equal(t, int32(1), mock.UserInfoCalls.Load())
	assert.Equal(t, int32(1), mock.SubscriptionCalls.Load())
}

func TestLogin_RotatesSession(t *testing.T) {
	svc, _, mock := setupLogin(t, nil)
	mock.AddViewer("code_a", "2001", "ViewerA")
	ctx := context.Background()

	first, err := svc.Login(ctx, "code_a", "http://localhost/callback")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "code_a", "http://localhost/callback")
	require.NoError(t, err)

	assert.Equal(t, first.Account.ID, second.Account.ID)
	assert.NotEqual(t, first.Account.SessionID, second.Account.SessionID)

	_, err = svc.Authenticate(ctx, first.Account.SessionID)
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
}

func TestLogin_Subscriber(t *testing.T) {
	svc, _, mock := setupLogin(t, staticBroadcaster{})
	mock.AddViewer("code_sub", "2002", "Subscriber")
	mock.SetSubscription("2002", "2000", true)

	result, err := svc.Login(context.Background(), "code_sub", "http://localhost/callback")
	require.NoError(t, err)

	assert.True(t, result.Account.IsSubscriber)
	assert.True(t, result.Account.IsGiftedSub)
	assert.Equal(t, models.Tier2, result.Account.Tier())
}

func TestLogin_BroadcasterUnavailableKeepsState(t *testing.T) {
	svc, store, mock := setupLogin(t, nil)
	mock.AddViewer("code_sub", "2002", "Subscriber")

	_, err := svc.Login(context.Background(), "code_sub", "http://localhost/callback")
	require.NoError(t, err)
	_, err = store.UpdateSubscription(context.Background(), "2002", models.Subscription{IsSubscriber: true, Tier: models.Tier1})
	require.NoError(t, err)

	result, err := svc.Login(context.Background(), "code_sub", "http://localhost/callback")
	require.NoError(t, err)
	assert.True(t, result.Account.IsSubscriber, "subscription kept when it cannot be checked")
	assert.Equal(t, int32(0), mock.SubscriptionCalls.Load())
}

func TestLogin_Owner(t *testing.T) {
	svc, _, mock := setupLogin(t, staticBroadcaster{})
	mock.AddViewer("code_owner", testutil.BroadcasterID, "August")

	result, err := svc.Login(context.Background(), "code_owner", "http://localhost/callback")
	require.NoError(t, err)

	assert.True(t, result.Account.IsOwner)
	assert.Equal(t, models.Tier3, result.Account.Tier())
	assert.True(t, result.Account.CanModifyPlaylist())
	assert.Equal(t, int32(0), mock.SubscriptionCalls.Load())
}

func TestLogin_Banned(t *testing.T) {
	svc, store, mock := setupLogin(t, nil)
	mock.AddViewer("code_a", "2001", "ViewerA")

	ctx := context.Background()
	_, err := svc.Login(ctx, "code_a", "http://localhost/callback")
	require.NoError(t, err)
	banned, err := store.SetBanned(ctx, "2001", true, "rotated-session")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "code_a", "http://localhost/callback")
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))
	assert.EqualError(t, err, "Account is banned")

	// no new session is issued
	after, err := store.GetAccountByTwitchID(ctx, "2001")
	require.NoError(t, err)
	assert.Equal(t, banned.SessionID, after.SessionID)
}

func TestLogin_UpstreamFailures(t *testing.T) {
	svc, store, mock := setupLogin(t, nil)

	_, err := svc.Login(context.Background(), "unknown_code", "http://localhost/callback")
	assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))
	assert.Contains(t, err.Error(), "Failed to get Twitch auth token")

	mock.AddViewer("code_a", "2001", "ViewerA")
	store.FailWrites = errors.New("connection reset")
	_, err = svc.Login(context.Background(), "code_a", "http://localhost/callback")
	assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))
	assert.Contains(t, err.Error(), "Failed to connect Twitch account")
}

func TestAuthenticate(t *testing.T) {
	svc, _, mock := setupLogin(t, nil)
	mock.AddViewer("code_a", "2001", "ViewerA")
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, "")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = svc.Authenticate(ctx, testutil.GenerateSessionID())
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	result, err := svc.Login(ctx, "code_a", "http://localhost/callback")
	require.NoError(t, err)

	account, err := svc.Authenticate(ctx, result.Account.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "2001", account.TwitchID)
}
