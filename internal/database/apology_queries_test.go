package database

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsascontentcorner/fansite/internal/models"
)

func submitted(twitchID, body string) *models.Apology {
	return &models.Apology{
		TwitchID:       twitchID,
		TwitchUsername: "user" + twitchID,
		Subject:        sql.NullString{String: "subject " + twitchID, Valid: true},
		Body:           sql.NullString{String: body, Valid: body != ""},
		SessionID:      sql.NullString{String: uuid.NewString(), Valid: true},
	}
}

func TestEnsureApology_KeepsContent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SubmitApology(ctx, submitted("2001", "<p>sorry</p>")))

	apology, err := db.EnsureApology(ctx, "2001", "renamed", "new-session")
	require.NoError(t, err)
	assert.Equal(t, "renamed", apology.TwitchUsername)
	assert.Equal(t, "<p>sorry</p>", apology.Body.String)
	assert.Equal(t, "new-session", apology.SessionID.String)
}

func TestSubmitApology_Upsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := submitted("2002", "first")
	require.NoError(t, db.SubmitApology(ctx, first))

	second := submitted("2002", "second")
	require.NoError(t, db.SubmitApology(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := db.GetApologyByTwitchID(ctx, "2002")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Body.String)
}

func TestGetApologyByTwitchID_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetApologyByTwitchID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrApologyNotFound)
}

func TestListPublishedApologies_ExactPage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, db.SubmitApology(ctx, submitted(fmt.Sprintf("30%02d", i), "body")))
	}
	// a login-only row carries no apology and is not listed
	_, err := db.EnsureApology(ctx, "3999", "lurker", "session")
	require.NoError(t, err)

	items, total, err := db.ListPublishedApologies(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Len(t, items, 10)

	items, total, err = db.ListPublishedApologies(ctx, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Empty(t, items)
}
