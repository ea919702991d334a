package models

import (
	"database/sql"
	"time"
)

// Apology is the single apology a Twitch user may publish
type Apology struct {
	ID             int64
	TwitchID       string
	TwitchUsername string
	Subject        sql.NullString
	Body           sql.NullString
	SessionID      sql.NullString
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasContent reports whether the apology has been submitted
func (a *Apology) HasContent() bool {
	return a.Body.Valid && a.Body.String != ""
}

// ApologySummary is one row of the public listing
type ApologySummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Subject  string `json:"subject"`
	Excerpt  string `json:"excerpt"`
}

// ApologyPage is a page of the public listing
type ApologyPage struct {
	Items    []ApologySummary `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}
