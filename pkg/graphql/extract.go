package graphql

import (
	"sort"
	"strings"
)

// Record is the legacy payload of an entity with id_str set to its rest_id
type Record map[string]interface{}

// Batch is everything found in one response tree
type Batch struct {
	Tweets       map[string]Record
	Retweets     map[string]Record
	Users        map[string]Record
	Cursors      map[string]string
	RetweetedIDs map[string]struct{}
}

func newBatch() *Batch {
	return &Batch{
		Tweets:       make(map[string]Record),
		Retweets:     make(map[string]Record),
		Users:        make(map[string]Record),
		Cursors:      make(map[string]string),
		RetweetedIDs: make(map[string]struct{}),
	}
}

// Cursor returns the cursor for a direction such as "bottom"
func (b *Batch) Cursor(direction string) (string, bool) {
	c, ok := b.Cursors[direction]
	return c, ok
}

// TweetIDs returns the tweet ids in ascending string order
func (b *Batch) TweetIDs() []string {
	ids := make([]string, 0, len(b.Tweets))
	for id := range b.Tweets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Extract classifies every tweet, retweet, user and cursor in the tree.
// The walk is depth first in document order and the first occurrence of an
// id wins. Retweeted ids never appear among the tweets.
func Extract(root Node) *Batch {
	b := newBatch()
	walk(b, root)
	for id := range b.RetweetedIDs {
		delete(b.Tweets, id)
	}
	return b
}

func walk(b *Batch, n Node) {
	switch v := n.(type) {
	case *Object:
		if t, _ := v.String("type"); t == "TimelinePinEntry" {
			return
		}
		if name, ok := v.String("__typename"); ok {
			if !dispatch(b, name, v) {
				return
			}
		}
		for _, k := range v.Keys {
			walk(b, v.Values[k])
		}
	case Array:
		for _, child := range v {
			walk(b, child)
		}
	}
}

// dispatch hands an object to the handler for its __typename. It returns
// false when the walk must not descend into the object.
func dispatch(b *Batch, typename string, obj *Object) bool {
	switch typename {
	case "Tweet":
		return handleTweet(b, obj)
	case "TweetWithVisibilityResults":
		return handleTweetWithVisibility(b, obj)
	case "User":
		return handleUser(b, obj)
	case "TimelineTimelineCursor":
		return handleCursor(b, obj)
	}
	return true
}

func handleTweet(b *Batch, obj *Object) bool {
	addTweet(b, obj)
	return true
}

func handleTweetWithVisibility(b *Batch, obj *Object) bool {
	if inner := obj.Object("tweet"); inner != nil {
		addTweet(b, inner)
	}
	return true
}

func addTweet(b *Batch, node *Object) {
	legacy := node.Object("legacy")
	id, ok := node.String("rest_id")
	if legacy == nil || !ok {
		return
	}

	retweeted := legacy.Get("retweeted_status_result")
	if retweeted == nil {
		if _, seen := b.Tweets[id]; seen {
			return
		}
		if _, isRetweeted := b.RetweetedIDs[id]; isRetweeted {
			return
		}
		b.Tweets[id] = record(legacy, id)
		return
	}

	if _, seen := b.Retweets[id]; seen {
		return
	}
	rec := record(legacy, id)
	if wrappedID, ok := wrappedTweetID(retweeted); ok {
		rec["retweet_id"] = wrappedID
		b.RetweetedIDs[wrappedID] = struct{}{}
	}
	b.Retweets[id] = rec
}

// wrappedTweetID returns the rest_id of the tweet a retweet wraps. Tweets
// the wrapped tweet quotes sit deeper in the tree and are not considered.
func wrappedTweetID(retweeted Node) (string, bool) {
	obj, ok := retweeted.(*Object)
	if !ok {
		return "", false
	}
	result := obj.Object("result")
	if result == nil {
		return "", false
	}
	if name, _ := result.String("__typename"); name == "TweetWithVisibilityResults" {
		result = result.Object("tweet")
		if result == nil {
			return "", false
		}
	}
	if result.Object("legacy") == nil {
		return "", false
	}
	return result.String("rest_id")
}

func handleUser(b *Batch, obj *Object) bool {
	legacy := obj.Object("legacy")
	id, ok := obj.String("rest_id")
	if legacy == nil || !ok {
		return true
	}
	if _, seen := b.Users[id]; !seen {
		b.Users[id] = record(legacy, id)
	}
	return true
}

func handleCursor(b *Batch, obj *Object) bool {
	cursorType, ok := obj.String("cursorType")
	if !ok {
		return false
	}
	value, _ := obj.String("value")
	b.Cursors[strings.ToLower(cursorType)] = value
	return false
}

func record(legacy *Object, id string) Record {
	rec := Record(legacy.Map())
	rec["id_str"] = id
	return rec
}

// ExtractJSON parses data and extracts its batch
func ExtractJSON(data []byte) (*Batch, error) {
	root, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Extract(root), nil
}
