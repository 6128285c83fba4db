// Package metadata describes a retained tweet in a JSON file stored next to
// its media, so an asset directory stays meaningful without the database.
package metadata

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"twscraper/pkg/models"
)

// TweetMetadata is everything kept about a retained tweet
type TweetMetadata struct {
	// Core identifiers
	ID  string `json:"id"`
	URL string `json:"url"`

	Author Author `json:"author"`

	// Timestamps
	CreatedAt    time.Time `json:"created_at"`
	DownloadedAt time.Time `json:"downloaded_at"`

	// Content
	Text     string   `json:"text,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
	Links    []string `json:"links,omitempty"`

	// Engagement at download time
	Likes    int `json:"likes"`
	Retweets int `json:"retweets"`
	Replies  int `json:"replies"`
	Quotes   int `json:"quotes"`

	Media       []File `json:"media"`
	Fingerprint string `json:"fingerprint"`
}

// Author identifies the account that posted the tweet
type Author struct {
	ID         string `json:"id"`
	ScreenName string `json:"screen_name,omitempty"`
}

// File is one saved media file of the tweet
type File struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url"`
	MD5  string `json:"md5"`
}

// Filename is the name of the metadata file inside the asset directory
func Filename(tweetID string) string {
	return tweetID + ".json"
}

// StatusURL is the public address of a tweet. The handle-less form
// redirects to the right account.
func StatusURL(screenName, tweetID string) string {
	if screenName == "" {
		return "https://x.com/i/web/status/" + tweetID
	}
	return fmt.Sprintf("https://x.com/%s/status/%s", screenName, tweetID)
}

// FromTweet builds the metadata of a tweet whose media was saved as files
func FromTweet(t *models.Tweet, screenName string, files []File, fingerprint string, downloadedAt time.Time) *TweetMetadata {
	meta := &TweetMetadata{
		ID:           t.IDStr,
		URL:          StatusURL(screenName, t.IDStr),
		Author:       Author{ID: t.UserIDStr, ScreenName: screenName},
		DownloadedAt: downloadedAt.UTC(),
		Text:         t.FullText,
		Likes:        t.FavoriteCount,
		Retweets:     t.RetweetCount,
		Replies:      t.ReplyCount,
		Quotes:       t.QuoteCount,
		Media:        files,
		Fingerprint:  fingerprint,
	}
	if created, err := t.Created(); err == nil {
		meta.CreatedAt = created.UTC()
	}
	for _, h := range t.Entities.Hashtags {
		meta.Hashtags = append(meta.Hashtags, h.Text)
	}
	for _, u := range t.Entities.URLs {
		if u.ExpandedURL != "" {
			meta.Links = append(meta.Links, u.ExpandedURL)
		}
	}
	return meta
}

// Encode renders the metadata as indented JSON
func (m *TweetMetadata) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

// Decode reads metadata written by Encode
func Decode(r io.Reader) (*TweetMetadata, error) {
	var meta TweetMetadata
	if err := json.NewDecoder(r).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// Excerpt returns the text cut to at most maxLength runes
func (m *TweetMetadata) Excerpt(maxLength int) string {
	runes := []rune(m.Text)
	if maxLength <= 3 || len(runes) <= maxLength {
		return m.Text
	}
	return string(runes[:maxLength-3]) + "..."
}
