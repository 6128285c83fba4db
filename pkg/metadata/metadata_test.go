package metadata

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twscraper/pkg/models"
)

func sampleTweet() *models.Tweet {
	t := &models.Tweet{
		IDStr:         "1790000000000000001",
		UserIDStr:     "11348282",
		FullText:      "Liftoff! #Artemis https://t.co/abc",
		CreatedAt:     "Tue May 14 16:00:00 +0000 2024",
		FavoriteCount: 120,
		RetweetCount:  30,
		ReplyCount:    4,
		QuoteCount:    2,
	}
	t.Entities.Hashtags = []models.Hashtag{{Text: "Artemis"}}
	t.Entities.URLs = []models.URL{{URL: "https://t.co/abc", ExpandedURL: "https://nasa.gov/artemis"}, {URL: "https://t.co/x"}}
	return t
}

func TestFromTweet(t *testing.T) {
	downloaded := time.Date(2024, 5, 15, 8, 0, 0, 0, time.UTC)
	files := []File{{Name: "1790000000000000001-1.jpg", Type: "photo", URL: "https://pbs.example/a.jpg?name=orig", MD5: "aa"}}

	meta := FromTweet(sampleTweet(), "nasa", files, "aa", downloaded)

	assert.Equal(t, "1790000000000000001", meta.ID)
	assert.Equal(t, "https://x.com/nasa/status/1790000000000000001", meta.URL)
	assert.Equal(t, Author{ID: "11348282", ScreenName: "nasa"}, meta.Author)
	assert.Equal(t, time.Date(2024, 5, 14, 16, 0, 0, 0, time.UTC), meta.CreatedAt)
	assert.Equal(t, downloaded, meta.DownloadedAt)
	assert.Equal(t, []string{"Artemis"}, meta.Hashtags)
	assert.Equal(t, []string{"https://nasa.gov/artemis"}, meta.Links)
	assert.Equal(t, 120, meta.Likes)
	assert.Equal(t, files, meta.Media)
	assert.Equal(t, "aa", meta.Fingerprint)
}

func TestFromTweetWithoutHandleOrDate(t *testing.T) {
	tweet := sampleTweet()
	tweet.CreatedAt = "yesterday"

	meta := FromTweet(tweet, "", nil, "", time.Now())
	assert.Equal(t, "https://x.com/i/web/status/1790000000000000001", meta.URL)
	assert.True(t, meta.CreatedAt.IsZero())
}

func TestEncodeDecode(t *testing.T) {
	meta := FromTweet(sampleTweet(), "nasa", []File{{Name: "a.jpg", Type: "photo", MD5: "aa"}}, "aa",
		time.Date(2024, 5, 15, 8, 0, 0, 0, time.UTC))

	data, err := meta.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"id\": \"1790000000000000001\"")

	decoded, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, meta, decoded)

	_, err = Decode(bytes.NewReader([]byte("{")))
	assert.Error(t, err)
}

func TestExcerpt(t *testing.T) {
	meta := &TweetMetadata{Text: "ünïcödé text here"}
	assert.Equal(t, "ünïcödé...", meta.Excerpt(10))
	assert.Equal(t, meta.Text, meta.Excerpt(100))
	assert.Equal(t, meta.Text, meta.Excerpt(2))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "123.json", Filename("123"))
}
