// internal/handlers/game_test.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldrush-io/goldrush/internal/auth"
	"github.com/goldrush-io/goldrush/internal/game"
	"github.com/goldrush-io/goldrush/internal/store"
)

var authOnce sync.Once

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	authOnce.Do(auth.Init)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)

	svc := game.NewService(store.NewMemory(), logger)
	srv := &Server{Svc: svc, Logger: logger, PollTimeout: 100 * time.Millisecond}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

// newClient returns an http client with its own cookie jar, standing in
// for one player's browser.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func postForm(t *testing.T, c *http.Client, rawURL string, form url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(rawURL, form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, c *http.Client, rawURL string, out interface{}) *http.Response {
	t.Helper()
	resp, err := c.Get(rawURL)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestJoinStartMoveOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ann := newClient(t)
	ben := newClient(t)

	resp := postForm(t, ann, ts.URL+"/mines/join", url.Values{"player": {"ann"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postForm(t, ben, ts.URL+"/mines/join", url.Values{"player": {"ben"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postForm(t, ann, ts.URL+"/mines/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postForm(t, ben, ts.URL+"/mines/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info game.Info
	resp = getJSON(t, ann, ts.URL+"/mines", &info)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, game.StatusInProgress, info.Status.Type)
	require.NotNil(t, info.You, "cookie holder gets the private view")
	assert.Equal(t, "ann", info.You.Name)

	resp = postForm(t, ann, ts.URL+"/mines/move", url.Values{"move": {"lando"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A spectator sees ann only as "decided".
	var public game.Info
	resp = getJSON(t, http.DefaultClient, ts.URL+"/mines", &public)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, public.You)
	for _, p := range public.Status.Players {
		if p.Name == "ann" {
			assert.Equal(t, "decided", p.Move)
		}
	}
}

func TestJoinValidation(t *testing.T) {
	ts := newTestServer(t)
	ann := newClient(t)

	resp := postForm(t, ann, ts.URL+"/mines/join", url.Values{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "a name is required")

	resp = postForm(t, ann, ts.URL+"/mines/join", url.Values{"player": {"ann"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postForm(t, ann, ts.URL+"/mines/join", url.Values{"player": {"ann-again"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "one seat per session")

	other := newClient(t)
	resp = postForm(t, other, ts.URL+"/mines/join", url.Values{"player": {"ann"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "names are unique per game")
}

func TestActingRequiresSession(t *testing.T) {
	ts := newTestServer(t)

	resp := postForm(t, newClient(t), ts.URL+"/mines/move", url.Values{"move": {"lando"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postForm(t, newClient(t), ts.URL+"/mines/chat", url.Values{"message": {"hello"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ann := newClient(t)

	resp := postForm(t, ann, ts.URL+"/mines/join", url.Values{"player": {"ann"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postForm(t, ann, ts.URL+"/mines/chat", url.Values{"message": {"anyone?"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info game.Info
	getJSON(t, ann, ts.URL+"/mines", &info)
	require.NotEmpty(t, info.Events)
	last := info.Events[len(info.Events)-1]
	chat, ok := last.Event.(game.Chat)
	require.True(t, ok)
	assert.Equal(t, "anyone?", chat.Message)
	assert.Equal(t, "ann", chat.Speaker)
}

func TestInfoLongPollTimesOut(t *testing.T) {
	ts := newTestServer(t)
	ann := newClient(t)

	resp := postForm(t, ann, ts.URL+"/mines/join", url.Values{"player": {"ann"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info game.Info
	getJSON(t, ann, ts.URL+"/mines", &info)

	start := time.Now()
	resp = getJSON(t, ann, ts.URL+"/mines?id="+strconv.FormatInt(info.ID, 10), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond, "the poll waited out its window")
}

func TestIndexListsGames(t *testing.T) {
	ts := newTestServer(t)
	ann := newClient(t)

	postForm(t, ann, ts.URL+"/alpha/join", url.Values{"player": {"ann"}})
	postForm(t, ann, ts.URL+"/beta/join", url.Values{"player": {"ann"}})

	var list game.GameList
	resp := getJSON(t, http.DefaultClient, ts.URL+"/", &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list.Games, 2)
	assert.Equal(t, "beta", list.Games[0].Name, "newest first")
}
