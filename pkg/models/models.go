package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// twitterEpochMillis is the snowflake epoch offset in unix milliseconds
const twitterEpochMillis = 1288834974657

// createdAtLayout is the format of legacy created_at fields
const createdAtLayout = "Mon Jan 02 15:04:05 -0700 2006"

// Tweet is the legacy payload of a content item
type Tweet struct {
	IDStr         string   `json:"id_str"`
	UserIDStr     string   `json:"user_id_str"`
	FullText      string   `json:"full_text"`
	CreatedAt     string   `json:"created_at"`
	FavoriteCount int      `json:"favorite_count"`
	RetweetCount  int      `json:"retweet_count"`
	ReplyCount    int      `json:"reply_count"`
	QuoteCount    int      `json:"quote_count"`
	RetweetID     string   `json:"retweet_id,omitempty"`
	Entities      Entities `json:"entities"`
	// ExtendedEntities carries every attached media item; Entities only the first
	ExtendedEntities Entities `json:"extended_entities"`
}

// Entities holds the attachments of a tweet
type Entities struct {
	Media    []Media   `json:"media"`
	Hashtags []Hashtag `json:"hashtags"`
	URLs     []URL     `json:"urls"`
}

// Hashtag is a tagged word in tweet text
type Hashtag struct {
	Text string `json:"text"`
}

// URL is a shortened link with its expansion
type URL struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
}

// Media describes one attached image or video
type Media struct {
	IDStr         string    `json:"id_str"`
	Type          string    `json:"type"`
	MediaURLHTTPS string    `json:"media_url_https"`
	VideoInfo     VideoInfo `json:"video_info"`
}

// VideoInfo lists the encodings of a video or animated gif
type VideoInfo struct {
	Variants []Variant `json:"variants"`
}

// Variant is one encoding of a video
type Variant struct {
	Bitrate     int    `json:"bitrate"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// User is the legacy payload of an author
type User struct {
	IDStr       string `json:"id_str"`
	ScreenName  string `json:"screen_name"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Entities    struct {
		URL struct {
			URLs []URL `json:"urls"`
		} `json:"url"`
		Description struct {
			URLs []URL `json:"urls"`
		} `json:"description"`
	} `json:"entities"`
}

// Asset is a downloadable media file of a tweet
type Asset struct {
	TweetID string
	Index   int
	Type    string
	URL     string
}

// Filename is the stored name of the asset, keyed by tweet and position
func (a Asset) Filename() string {
	ext := ".jpg"
	switch a.Type {
	case "video", "animated_gif":
		ext = ".mp4"
	default:
		if path := strings.SplitN(a.URL, "?", 2)[0]; strings.Contains(path, ".") {
			ext = path[strings.LastIndex(path, "."):]
		}
	}
	return fmt.Sprintf("%s-%d%s", a.TweetID, a.Index, ext)
}

// Decode converts a raw record, as produced by the extractor, into a
// typed value.
func Decode(record map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// TweetFromRecord decodes a tweet record
func TweetFromRecord(record map[string]interface{}) (*Tweet, error) {
	var t Tweet
	if err := Decode(record, &t); err != nil {
		return nil, fmt.Errorf("decode tweet: %w", err)
	}
	return &t, nil
}

// UserFromRecord decodes a user record
func UserFromRecord(record map[string]interface{}) (*User, error) {
	var u User
	if err := Decode(record, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// HasMedia reports whether a raw tweet record carries a non-empty
// entities.media list.
func HasMedia(record map[string]interface{}) bool {
	entities, ok := record["entities"].(map[string]interface{})
	if !ok {
		return false
	}
	media, ok := entities["media"].([]interface{})
	return ok && len(media) > 0
}

// Created parses created_at
func (t *Tweet) Created() (time.Time, error) {
	return time.Parse(createdAtLayout, t.CreatedAt)
}

// ID returns the numeric tweet id
func (t *Tweet) ID() (int64, error) {
	return strconv.ParseInt(t.IDStr, 10, 64)
}

// Assets lists the media files of the tweet: images at original size and,
// for videos, the highest bitrate mp4.
func (t *Tweet) Assets() []Asset {
	media := t.ExtendedEntities.Media
	if len(media) == 0 {
		media = t.Entities.Media
	}

	assets := make([]Asset, 0, len(media))
	for i, m := range media {
		asset := Asset{TweetID: t.IDStr, Index: i + 1, Type: m.Type}
		switch m.Type {
		case "video", "animated_gif":
			v, ok := BestVariant(m.VideoInfo.Variants)
			if !ok {
				continue
			}
			asset.URL = v.URL
		default:
			if m.MediaURLHTTPS == "" {
				continue
			}
			asset.URL = m.MediaURLHTTPS + "?name=orig"
		}
		assets = append(assets, asset)
	}
	return assets
}

// BestVariant picks the mp4 variant with the highest bitrate
func BestVariant(variants []Variant) (Variant, bool) {
	mp4 := make([]Variant, 0, len(variants))
	for _, v := range variants {
		if v.ContentType == "video/mp4" {
			mp4 = append(mp4, v)
		}
	}
	if len(mp4) == 0 {
		return Variant{}, false
	}
	sort.SliceStable(mp4, func(i, j int) bool { return mp4[i].Bitrate > mp4[j].Bitrate })
	return mp4[0], true
}

// SnowflakeTime returns the creation instant encoded in a snowflake id
func SnowflakeTime(id int64) time.Time {
	return time.UnixMilli((id >> 22) + twitterEpochMillis).UTC()
}

// Links returns the expanded profile and bio links of a user
func (u *User) Links() []string {
	var links []string
	for _, l := range append(u.Entities.URL.URLs, u.Entities.Description.URLs...) {
		if l.ExpandedURL != "" {
			links = append(links, l.ExpandedURL)
		}
	}
	return links
}
