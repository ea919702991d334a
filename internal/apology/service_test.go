package apology

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/models"
	"github.com/parsascontentcorner/fansite/internal/testutil"
)

func setup(t *testing.T) (*Service, *testutil.MemoryStore) {
	t.Helper()
	store := testutil.NewMemoryStore()
	return NewService(store, zap.NewNop()), store
}

func login(t *testing.T, store *testutil.MemoryStore, twitchID string) *models.Account {
	t.Helper()
	account, err := store.UpsertAccount(context.Background(), testutil.GenerateProfile(twitchID))
	require.NoError(t, err)
	return account
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var aerr *Error
	require.True(t, errors.As(err, &aerr), "expected *apology.Error, got %v", err)
	return aerr.StatusCode()
}

func TestSubmit_Sanitizes(t *testing.T) {
	svc, store := setup(t)
	account := login(t, store, "5001")

	apology, err := svc.Submit(context.Background(), account.SessionID,
		"<b>Sorry</b> chat",
		`<p onclick="steal()">I was wrong</p><script>alert(1)</script><a href="javascript:alert(1)">link</a>`,
	)
	require.NoError(t, err)

	assert.Equal(t, "Sorry chat", apology.Subject.String)
	assert.Contains(t, apology.Body.String, "<p>I was wrong</p>")
	assert.NotContains(t, apology.Body.String, "script")
	assert.NotContains(t, apology.Body.String, "onclick")
	assert.NotContains(t, apology.Body.String, "javascript:")
	assert.Equal(t, account.DisplayName, apology.TwitchUsername)

	apology, err = svc.Submit(context.Background(), account.SessionID,
		"Tom & Jerry's fight",
		"<p>I'm sorry & I won't do it again</p>",
	)
	require.NoError(t, err)
	assert.Equal(t, "Tom & Jerry's fight", apology.Subject.String)

	page, err := svc.List(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Tom & Jerry's fight", page.Items[0].Subject)
	assert.Equal(t, "I'm sorry & I won't do it again", page.Items[0].Excerpt)
}

func TestSubmit_Upserts(t *testing.T) {
	svc, store := setup(t)
	account := login(t, store, "5002")
	ctx := context.Background()

	_, err := svc.Submit(ctx, account.SessionID, "first", "first body")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, account.SessionID, "second", "second body")
	require.NoError(t, err)

	got, err := svc.Get(ctx, "5002")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Subject.String)
	assert.Equal(t, "second body", got.Body.String)

	page, err := svc.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestSubmit_Validation(t *testing.T) {
	svc, store := setup(t)
	account := login(t, store, "5003")
	ctx := context.Background()

	_, err := svc.Submit(ctx, "", "subject", "body")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = svc.Submit(ctx, account.SessionID, "", "body")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	// markup-only bodies are empty once sanitized
	_, err = svc.Submit(ctx, account.SessionID, "subject", "<script>alert(1)</script>")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = svc.Submit(ctx, testutil.GenerateSessionID(), "subject", "body")
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
}

func TestSubmit_StoreFailure(t *testing.T) {
	svc, store := setup(t)
	account := login(t, store, "5004")
	store.FailWrites = errors.New("disk full")

	_, err := svc.Submit(context.Background(), account.SessionID, "subject", "body")
	assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))
	assert.EqualError(t, err, "Failed to submit apology")
}

func TestGet_NotFound(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "missing")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	// a login creates the row but it has nothing to show yet
	account := login(t, store, "5005")
	_, err = store.EnsureApology(ctx, account.TwitchID, account.DisplayName, account.SessionID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, "5005")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	_, err = svc.Get(ctx, "")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestList_ExactPage(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		account := login(t, store, fmt.Sprintf("60%02d", i))
		_, err := svc.Submit(ctx, account.SessionID, "subject", "body")
		require.NoError(t, err)
	}
	lurker := login(t, store, "6999")
	_, err := store.EnsureApology(ctx, lurker.TwitchID, lurker.DisplayName, lurker.SessionID)
	require.NoError(t, err)

	page, err := svc.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)
	assert.Equal(t, 10, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.PageSize)

	page, err = svc.List(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 10, page.Total)
}

func TestList_Defaults(t *testing.T) {
	svc, _ := setup(t)

	page, err := svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.NotNil(t, page.Items)

	page, err = svc.List(context.Background(), 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.PageSize)
}

func TestExcerpt(t *testing.T) {
	svc, _ := setup(t)

	assert.Equal(t, "Hello world", svc.Excerpt("<p>Hello</p>\n\n<p>world</p>"))

	long := "<p>" + strings.Repeat("é", 300) + "</p>"
	excerpt := svc.Excerpt(long)
	assert.Equal(t, ExcerptLength+1, utf8.RuneCountInString(excerpt))
	assert.True(t, strings.HasSuffix(excerpt, "…"))

	exact := strings.Repeat("a", ExcerptLength)
	assert.Equal(t, exact, svc.Excerpt(exact))

	assert.Equal(t, `Fish & chips, "quoted" and it's fine`,
		svc.Excerpt(`<p>Fish &amp; chips, "quoted" and it's fine</p>`))

	// Entities count as one rune each and are never cut in half.
	entities := "<p>" + strings.Repeat("&", 300) + "</p>"
	assert.Equal(t, strings.Repeat("&", ExcerptLength)+"…", svc.Excerpt(entities))
}
