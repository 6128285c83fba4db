package twitter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twscraper/pkg/config"
	errs "twscraper/pkg/errors"
	"twscraper/pkg/graphql"
	"twscraper/pkg/logger"
	"twscraper/pkg/retry"
	"twscraper/pkg/storage"
)

// scriptedTransport replays responses in order and records each request
type scriptedTransport struct {
	mu        sync.Mutex
	responses []scripted
	requests  []Request
}

type scripted struct {
	status int
	body   string
	err    error
}

func (s *scriptedTransport) Do(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &Response{StatusCode: next.status, Body: []byte(next.body)}, nil
}

type sleepLog struct {
	delays []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func testCredentials() config.TwitterConfig {
	return config.TwitterConfig{
		AuthToken: "auth123",
		CSRFToken: "csrf456",
		UserAgent: "test-agent/1.0",
	}
}

func newTestClient(t *testing.T, responses ...scripted) (*Client, *scriptedTransport, *sleepLog) {
	t.Helper()
	transport := &scriptedTransport{responses: responses}
	sleeps := &sleepLog{}
	rl := config.DefaultConfig().RateLimit
	runner := &retry.Runner{
		Policy: retry.PolicyFromConfig(rl),
		Logger: logger.NewNopLogger(),
		Sleep:  sleeps.sleep,
	}
	client := NewClient(testCredentials(), rl,
		WithTransport(transport),
		WithRunner(runner),
		WithLogger(logger.NewTestLogger()),
	)
	return client, transport, sleeps
}

func TestNewClientHeaders(t *testing.T) {
	client, transport, _ := newTestClient(t, scripted{status: 200, body: `{}`})

	_, err := client.GetJSON(context.Background(), "UserMedia", "https://x.com/i/api/graphql/q/UserMedia")
	require.NoError(t, err)
	require.Len(t, transport.requests, 1)

	headers := transport.requests[0].Headers
	assert.Equal(t, "test-agent/1.0", headers["user-agent"])
	assert.Equal(t, "Bearer "+DefaultBearerToken, headers["authorization"])
	assert.Equal(t, "csrf456", headers["x-csrf-token"])
	assert.Equal(t, "auth_token=auth123; ct0=csrf456", headers["cookie"])
	assert.Equal(t, config.DefaultConfig().RateLimit.RequestTimeout, transport.requests[0].Timeout)
}

func TestDownloadSendsOnlyUserAgent(t *testing.T) {
	client, transport, _ := newTestClient(t, scripted{status: 200, body: "jpeg bytes"})

	body, err := client.Download(context.Background(), "https://pbs.twimg.com/media/a.jpg?name=orig")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg bytes"), body)
	assert.Equal(t, map[string]string{"user-agent": "test-agent/1.0"}, transport.requests[0].Headers)
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"unauthorized", 401, ``},
		{"forbidden code list", 403, `{"errors":[{"code":239,"message":"Bad guest token"}]}`},
		{"forbidden code 200", 403, `{"errors":[{"code":200,"message":"Forbidden"}]}`},
		{"forbidden encoded string", 403, `{"errors":"{\"code\":239}"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport, sleeps := newTestClient(t, scripted{status: tt.status, body: tt.body})

			_, err := client.GetJSON(context.Background(), "UserMedia", "https://x.com/q")
			require.Error(t, err)
			assert.True(t, IsAuthFailure(err))
			assert.Len(t, transport.requests, 1)
			assert.Empty(t, sleeps.delays)
		})
	}
}

func TestForbiddenWithOtherCodeIsUpstream(t *testing.T) {
	client, _, _ := newTestClient(t, scripted{status: 403, body: `{"errors":[{"code":64}]}`})

	_, err := client.GetJSON(context.Background(), "UserMedia", "https://x.com/q")
	require.Error(t, err)
	assert.False(t, IsAuthFailure(err))
	assert.Equal(t, errs.ErrorTypeUpstream, errs.TypeOf(err))
	assert.Contains(t, err.Error(), "HTTP 403 - Forbidden")
}

func TestRateLimitIsAbsorbed(t *testing.T) {
	client, transport, sleeps := newTestClient(t,
		scripted{status: 429},
		scripted{status: 429},
		scripted{status: 200, body: `{"data":{}}`},
	)

	node, err := client.GetJSON(context.Background(), "SearchTimeline", "https://x.com/q")
	require.NoError(t, err)
	assert.NotNil(t, node)
	assert.Len(t, transport.requests, 3)
	assert.Equal(t, []time.Duration{5 * time.Minute, 5 * time.Minute}, sleeps.delays)
}

func TestServerErrorCooldown(t *testing.T) {
	client, _, sleeps := newTestClient(t,
		scripted{status: 502},
		scripted{status: 200, body: `{}`},
	)

	_, err := client.GetJSON(context.Background(), "UserMedia", "https://x.com/q")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{60 * time.Second}, sleeps.delays)
}

func TestNetworkFailureBudget(t *testing.T) {
	reset := errors.New("connection reset by peer")
	client, transport, sleeps := newTestClient(t,
		scripted{err: reset},
		scripted{err: reset},
		scripted{err: reset},
		scripted{status: 200, body: `{}`},
	)

	_, err := client.GetJSON(context.Background(), "UserMedia", "https://x.com/q")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNetwork, errs.TypeOf(err))
	assert.Len(t, transport.requests, 3)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeps.delays)
}

func TestInternalServerErrorIsTerminal(t *testing.T) {
	client, transport, _ := newTestClient(t, scripted{status: 500})

	_, err := client.GetJSON(context.Background(), "UserMedia", "https://x.com/q")
	require.Error(t, err)

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 500, e.Code)
	assert.Equal(t, "UserMedia", e.Origin)
	assert.Len(t, transport.requests, 1)
}

func TestInvalidJSONIsUpstream(t *testing.T) {
	log := logger.NewTestLogger()
	client, _, _ := newTestClient(t, scripted{status: 200, body: `<html>maintenance</html>`})
	client.logger = log

	_, err := client.GetJSON(context.Background(), "UserMedia", "https://x.com/q")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeUpstream, errs.TypeOf(err))
	assert.True(t, log.HasMessage("failed to parse JSON response"))
}

type countingObserver struct {
	statuses []int
}

func (o *countingObserver) ObserveRequest(endpoint string, status int, d time.Duration) {
	o.statuses = append(o.statuses, status)
}

func TestObserverSeesEveryAttempt(t *testing.T) {
	client, _, _ := newTestClient(t, scripted{status: 503}, scripted{status: 200, body: `{}`})
	obs := &countingObserver{}
	client.observer = obs

	_, err := client.GetJSON(context.Background(), "UserMedia", "https://x.com/q")
	require.NoError(t, err)
	assert.Equal(t, []int{503, 200}, obs.statuses)
}

func TestHTTPTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "csrf456", r.Header.Get("x-csrf-token"))
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors":[{"code":88}]}`))
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.Client())
	resp, err := transport.Do(context.Background(), Request{
		URL:     server.URL,
		Headers: map[string]string{"x-csrf-token": "csrf456"},
		Timeout: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(resp.Body), `"code":88`)
}

func TestUserMediaURL(t *testing.T) {
	raw := UserMediaURL("https://x.com/", "42", 20, "c1")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "/i/api/graphql/"+OpUserMedia.QueryID+"/UserMedia", u.Path)
	vars := u.Query().Get("variables")
	assert.Contains(t, vars, `"userId":"42"`)
	assert.Contains(t, vars, `"count":20`)
	assert.Contains(t, vars, `"cursor":"c1"`)
	assert.NotEmpty(t, u.Query().Get("features"))

	noCursor := UserMediaURL("https://x.com", "42", 100, "")
	assert.NotContains(t, noCursor, "cursor")
}

func TestSearchTimelineURL(t *testing.T) {
	raw := SearchTimelineURL(BaseURL, "from:nasa since:2024-01-01", 100, "")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	vars := u.Query().Get("variables")
	assert.Contains(t, vars, `"rawQuery":"from:nasa since:2024-01-01"`)
	assert.Contains(t, vars, `"product":"Latest"`)
	assert.True(t, strings.HasSuffix(u.Path, "/SearchTimeline"))
}

const userResponse = `{"data":{"user":{"__typename":"User","rest_id":"42",
  "legacy":{"screen_name":"nasa","name":"NASA","description":"space"}}}}`

func TestUserByIDUsesEntityCache(t *testing.T) {
	client, transport, _ := newTestClient(t, scripted{status: 200, body: userResponse})
	cache := storage.NewMemoryEntityStore(time.Hour)
	client.entities = cache
	ctx := context.Background()

	user, err := client.UserByID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "nasa", user["screen_name"])
	assert.Equal(t, "42", user["id_str"])

	again, err := client.UserByID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "NASA", again["name"])
	assert.Len(t, transport.requests, 1, "second lookup served from cache")
}

func TestUserByScreenName(t *testing.T) {
	client, transport, _ := newTestClient(t, scripted{status: 200, body: userResponse})

	id, err := client.UserByScreenName(context.Background(), "nasa")
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.Contains(t, transport.requests[0].URL, "UserByScreenNameWithoutResults")
}

func TestUserMissingLegacyIsDataIntegrity(t *testing.T) {
	client, _, _ := newTestClient(t, scripted{status: 200, body: `{"data":{"user":{"rest_id":"42"}}}`})

	_, err := client.UserByID(context.Background(), "42")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeDataIntegrity, errs.TypeOf(err))
}

func TestUserAPIErrorsAreUpstream(t *testing.T) {
	client, _, _ := newTestClient(t, scripted{status: 200, body: `{"errors":[{"message":"User has been suspended"}]}`})

	_, err := client.UserByID(context.Background(), "42")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeUpstream, errs.TypeOf(err))
	assert.Contains(t, err.Error(), "User has been suspended")
}

func TestTweetByID(t *testing.T) {
	body := `{"data":{"tweetResult":{"result":{"__typename":"Tweet","rest_id":"105",
	  "legacy":{"full_text":"hello","user_id_str":"42"}}}}}`
	client, _, _ := newTestClient(t,
		scripted{status: 200, body: body},
		scripted{status: 200, body: `{"data":{"tweetResult":{}}}`},
	)

	tweet, err := client.TweetByID(context.Background(), "105")
	require.NoError(t, err)
	assert.Equal(t, "hello", tweet["full_text"])

	_, err = client.TweetByID(context.Background(), "106")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeDataIntegrity, errs.TypeOf(err))
}

func TestUserMediaPageParses(t *testing.T) {
	client, transport, _ := newTestClient(t, scripted{status: 200, body: `{"data":{"x":[1,2]}}`})

	node, err := client.UserMediaPage(context.Background(), "42", 100, "")
	require.NoError(t, err)
	obj, ok := node.(*graphql.Object)
	require.True(t, ok)
	assert.True(t, obj.Has("data"))
	assert.Contains(t, transport.requests[0].URL, "/UserMedia?")
}
