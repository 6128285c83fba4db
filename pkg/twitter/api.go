package twitter

import (
	"context"
	"strings"

	errs "twscraper/pkg/errors"
	"twscraper/pkg/graphql"
	"twscraper/pkg/storage"
)

// WithEntityStore attaches an entity cache used to short-circuit single-entity
// lookups and to record what they return.
func WithEntityStore(store storage.EntityStore) Option {
	return func(c *Client) { c.entities = store }
}

// UserMediaPage fetches one page of an account's media timeline
func (c *Client) UserMediaPage(ctx context.Context, userID string, count int, cursor string) (graphql.Node, error) {
	return c.GetJSON(ctx, OpUserMedia.Name, UserMediaURL(c.baseURL, userID, count, cursor))
}

// SearchPage fetches one page of the Latest search timeline
func (c *Client) SearchPage(ctx context.Context, query string, count int, cursor string) (graphql.Node, error) {
	return c.GetJSON(ctx, OpSearchTimeline.Name, SearchTimelineURL(c.baseURL, query, count, cursor))
}

// TweetByID returns the legacy record of one tweet
func (c *Client) TweetByID(ctx context.Context, tweetID string) (graphql.Record, error) {
	if rec, ok := c.cached(ctx, tweetID, storage.KindTweet); ok {
		return rec, nil
	}

	root, err := c.GetJSON(ctx, OpTweetByRestID.Name, TweetByIDURL(c.baseURL, tweetID))
	if err != nil {
		return nil, err
	}
	batch := graphql.Extract(root)
	tweet, ok := batch.Tweets[tweetID]
	if !ok {
		return nil, errs.DataIntegrity("tweet not found: %s", tweetID).WithOrigin(OpTweetByRestID.Name)
	}
	c.remember(ctx, []graphql.Record{tweet}, storage.KindTweet)
	return tweet, nil
}

// UserByID returns the legacy record of one account
func (c *Client) UserByID(ctx context.Context, userID string) (graphql.Record, error) {
	if rec, ok := c.cached(ctx, userID, storage.KindUser); ok {
		return rec, nil
	}

	root, err := c.GetJSON(ctx, OpUserByRestID.Name, UserByIDURL(c.baseURL, userID))
	if err != nil {
		return nil, err
	}
	user, err := userFromResponse(root, OpUserByRestID.Name)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, []graphql.Record{user}, storage.KindUser)
	return user, nil
}

// UserByScreenName resolves a handle to its account id
func (c *Client) UserByScreenName(ctx context.Context, screenName string) (string, error) {
	root, err := c.GetJSON(ctx, OpUserByScreenName.Name, UserByScreenNameURL(c.baseURL, screenName))
	if err != nil {
		return "", err
	}
	user, err := userFromResponse(root, OpUserByScreenName.Name)
	if err != nil {
		return "", err
	}
	c.remember(ctx, []graphql.Record{user}, storage.KindUser)
	return user["id_str"].(string), nil
}

// userFromResponse reads data.user, which must carry rest_id and legacy
func userFromResponse(root graphql.Node, origin string) (graphql.Record, error) {
	obj, ok := root.(*graphql.Object)
	if !ok {
		return nil, errs.Upstream("unexpected response shape").WithOrigin(origin)
	}
	if msgs := apiErrors(obj); len(msgs) > 0 {
		return nil, errs.Upstream("Twitter error: %s", strings.Join(msgs, "; ")).WithOrigin(origin)
	}

	user, _ := obj.Path("data", "user").(*graphql.Object)
	id, hasID := user.String("rest_id")
	legacy := user.Object("legacy")
	if !hasID || legacy == nil {
		return nil, errs.DataIntegrity("user data missing rest_id or legacy").WithOrigin(origin)
	}

	rec := graphql.Record(legacy.Map())
	rec["id_str"] = id
	return rec, nil
}

func apiErrors(obj *graphql.Object) []string {
	list, ok := obj.Get("errors").(graphql.Array)
	if !ok {
		return nil
	}
	var msgs []string
	for _, item := range list {
		if e, ok := item.(*graphql.Object); ok {
			if msg, ok := e.String("message"); ok {
				msgs = append(msgs, msg)
			}
		}
	}
	return msgs
}

func (c *Client) cached(ctx context.Context, id string, kind storage.EntityKind) (graphql.Record, bool) {
	if c.entities == nil {
		return nil, false
	}
	rec, ok, err := c.entities.Get(ctx, id, storage.PlatformTwitter, kind)
	if err != nil {
		c.logger.WarnWithFields("entity cache read failed", map[string]interface{}{
			"id":    id,
			"kind":  string(kind),
			"error": err.Error(),
		})
		return nil, false
	}
	return rec, ok
}

func (c *Client) remember(ctx context.Context, records []graphql.Record, kind storage.EntityKind) {
	if c.entities == nil {
		return
	}
	if err := c.entities.Save(ctx, records, "id_str", storage.PlatformTwitter, kind); err != nil {
		c.logger.WarnWithFields("entity cache write failed", map[string]interface{}{
			"kind":  string(kind),
			"error": err.Error(),
		})
	}
}
