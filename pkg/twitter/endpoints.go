package twitter

import (
	"encoding/json"
	"net/url"
	"strings"
)

const (
	// BaseURL is the default web API host
	BaseURL = "https://x.com"

	graphqlPath = "/i/api/graphql/"

	// DefaultBearerToken is the public web client token
	DefaultBearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"
)

// Operation is one persisted GraphQL query
type Operation struct {
	QueryID string
	Name    string
}

var (
	OpUserMedia        = Operation{QueryID: "aQQLnkexAl5z9ec_UgbEIA", Name: "UserMedia"}
	OpSearchTimeline   = Operation{QueryID: "KUnA_SzQ4DMxcwWuYZh9qg", Name: "SearchTimeline"}
	OpTweetByRestID    = Operation{QueryID: "7xflPyRiUxGVbJd4uWmbfg", Name: "TweetResultByRestId"}
	OpUserByRestID     = Operation{QueryID: "WN6Hck-Pwm-YP0uxVj1oMQ", Name: "UserByRestIdWithoutResults"}
	OpUserByScreenName = Operation{QueryID: "Vf8si2dfZ1zmah8ePYPjDQ", Name: "UserByScreenNameWithoutResults"}
)

var mediaTimelineFeatures = map[string]bool{
	"rweb_tipjar_consumption_enabled":                                         true,
	"responsive_web_graphql_exclude_directive_enabled":                        true,
	"verified_phone_label_enabled":                                            false,
	"creator_subscriptions_tweet_preview_api_enabled":                         true,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"communities_web_enable_tweet_community_results_fetch":                    true,
	"c9s_tweet_anatomy_moderator_badge_enabled":                               true,
	"articles_preview_enabled":                                                false,
	"tweetypie_unmention_optimization_enabled":                                true,
	"responsive_web_edit_tweet_api_enabled":                                   true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
	"view_counts_everywhere_api_enabled":                                      true,
	"longform_notetweets_consumption_enabled":                                 true,
	"responsive_web_twitter_article_tweet_consumption_enabled":                true,
	"tweet_awards_web_tipping_enabled":                                        false,
	"creator_subscriptions_quote_tweet_preview_enabled":                       false,
	"freedom_of_speech_not_reach_fetch_enabled":                               true,
	"standardized_nudges_misinfo":                                             true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"tweet_with_visibility_results_prefer_gql_media_interstitial_enabled":     true,
	"rweb_video_timestamps_enabled":                                           true,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"longform_notetweets_inline_media_enabled":                                true,
	"responsive_web_enhance_cards_enabled":                                    false,
}

var searchTimelineFeatures = map[string]bool{
	"rweb_lists_timeline_redesign_enabled":                                    true,
	"responsive_web_graphql_exclude_directive_enabled":                        true,
	"verified_phone_label_enabled":                                            true,
	"creator_subscriptions_tweet_preview_api_enabled":                         true,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"tweetypie_unmention_optimization_enabled":                                true,
	"responsive_web_edit_tweet_api_enabled":                                   true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
	"view_counts_everywhere_api_enabled":                                      true,
	"longform_notetweets_consumption_enabled":                                 true,
	"responsive_web_twitter_article_tweet_consumption_enabled":                false,
	"tweet_awards_web_tipping_enabled":                                        false,
	"freedom_of_speech_not_reach_fetch_enabled":                               true,
	"standardized_nudges_misinfo":                                             true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"longform_notetweets_inline_media_enabled":                                true,
	"responsive_web_media_download_video_enabled":                             false,
	"responsive_web_enhance_cards_enabled":                                    false,
}

// tweetByIDFeatures turns every optional feature off; the single-tweet
// endpoint only needs the legacy payload.
var tweetByIDFeatures = map[string]bool{
	"creator_subscriptions_tweet_preview_api_enabled":                         false,
	"communities_web_enable_tweet_community_results_fetch":                    false,
	"c9s_tweet_anatomy_moderator_badge_enabled":                               false,
	"articles_preview_enabled":                                                false,
	"tweetypie_unmention_optimization_enabled":                                false,
	"responsive_web_edit_tweet_api_enabled":                                   false,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              false,
	"view_counts_everywhere_api_enabled":                                      false,
	"longform_notetweets_consumption_enabled":                                 false,
	"responsive_web_twitter_article_tweet_consumption_enabled":                false,
	"tweet_awards_web_tipping_enabled":                                        false,
	"creator_subscriptions_quote_tweet_preview_enabled":                       false,
	"freedom_of_speech_not_reach_fetch_enabled":                               false,
	"standardized_nudges_misinfo":                                             false,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": false,
	"tweet_with_visibility_results_prefer_gql_media_interstitial_enabled":     false,
	"rweb_video_timestamps_enabled":                                           false,
	"longform_notetweets_rich_text_read_enabled":                              false,
	"longform_notetweets_inline_media_enabled":                                false,
	"rweb_tipjar_consumption_enabled":                                         false,
	"responsive_web_graphql_exclude_directive_enabled":                        false,
	"verified_phone_label_enabled":                                            false,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"responsive_web_graphql_timeline_navigation_enabled":                      false,
	"responsive_web_enhance_cards_enabled":                                    false,
}

// buildURL encodes each parameter as a JSON query value
func buildURL(base string, op Operation, params map[string]interface{}) string {
	values := url.Values{}
	for key, v := range params {
		encoded, err := json.Marshal(v)
		if err != nil {
			// Parameters are built from maps of plain values only.
			panic(err)
		}
		values.Set(key, string(encoded))
	}
	return strings.TrimRight(base, "/") + graphqlPath + op.QueryID + "/" + op.Name + "?" + values.Encode()
}

// UserMediaURL builds a UserMedia timeline page request
func UserMediaURL(base, userID string, count int, cursor string) string {
	variables := map[string]interface{}{
		"userId":                 userID,
		"count":                  count,
		"includePromotedContent": false,
		"withClientEventToken":   false,
		"withBirdwatchNotes":     false,
		"withVoice":              true,
		"withV2Timeline":         true,
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}
	return buildURL(base, OpUserMedia, map[string]interface{}{
		"variables": variables,
		"features":  mediaTimelineFeatures,
		"toggles":   map[string]bool{"withArticlePlainText": false},
	})
}

// SearchTimelineURL builds a SearchTimeline page request for the Latest tab
func SearchTimelineURL(base, query string, count int, cursor string) string {
	variables := map[string]interface{}{
		"rawQuery":    query,
		"count":       count,
		"querySource": "typed_query",
		"product":     "Latest",
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}
	return buildURL(base, OpSearchTimeline, map[string]interface{}{
		"variables": variables,
		"features":  searchTimelineFeatures,
		"fieldToggles": map[string]bool{
			"withAuxiliaryUserLabels":     false,
			"withArticleRichContentState": false,
		},
	})
}

// TweetByIDURL builds a single tweet request
func TweetByIDURL(base, tweetID string) string {
	return buildURL(base, OpTweetByRestID, map[string]interface{}{
		"variables": map[string]interface{}{
			"tweetId":                tweetID,
			"withCommunity":          false,
			"includePromotedContent": false,
			"withVoice":              false,
		},
		"features": tweetByIDFeatures,
		"fieldToggles": map[string]bool{
			"withArticleRichContentState": false,
			"withArticlePlainText":        false,
			"withAuxiliaryUserLabels":     false,
		},
	})
}

// UserByIDURL builds a user lookup by numeric id
func UserByIDURL(base, userID string) string {
	return buildURL(base, OpUserByRestID, map[string]interface{}{
		"variables": map[string]interface{}{
			"userId":               userID,
			"withHighlightedLabel": false,
		},
	})
}

// UserByScreenNameURL builds a user lookup by handle
func UserByScreenNameURL(base, screenName string) string {
	return buildURL(base, OpUserByScreenName, map[string]interface{}{
		"variables": map[string]interface{}{
			"screen_name":          screenName,
			"withHighlightedLabel": false,
		},
	})
}
