package adapt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hendrywilliam/adapt/structs"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func readyEvent(sessionID string, guilds ...structs.Guild) structs.ReadyEvent {
	return structs.ReadyEvent{
		SessionID: sessionID,
		User:      structs.ClientUser{User: structs.User{ID: 31, Username: "jen", Discriminator: 7}},
		Guilds:    guilds,
		DMChannels: []structs.Channel{
			{ID: 70, Type: structs.ChannelTypeDM, RecipientIDs: []structs.Snowflake{31, 99}},
		},
	}
}

func TestDispatchPipelineCachesBeforeHandlers(t *testing.T) {
	c := newTestClient(t)
	type observation struct {
		e      *Event
		cached bool
	}
	obs := make(chan observation, 1)
	c.On(structs.EventMessageCreate, func(c *Client, e *Event) error {
		_, ok := c.State.Message(900)
		obs <- observation{e, ok}
		return nil
	})

	content := "hello"
	c.handleDispatch(structs.EventMessageCreate, mustJSON(t, structs.MessageCreateEvent{
		Message: structs.Message{ID: 900, ChannelID: 55, Content: &content},
	}))

	select {
	case o := <-obs:
		assert.True(t, o.cached, "cache should be written before handlers run")
		me, ok := o.e.Data.(*structs.MessageCreateEvent)
		require.True(t, ok)
		require.NotNil(t, me.Message.Content)
		assert.Equal(t, "hello", *me.Message.Content)
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

func TestReadySeedsCacheAndUnblocksWait(t *testing.T) {
	c := newTestClient(t)
	c.handleDispatch(structs.EventReady, mustJSON(t, readyEvent("s1", structs.Guild{ID: 10, Name: "den"})))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.WaitUntilReady(ctx))

	guild, ok := c.State.Guild(10)
	require.True(t, ok)
	assert.Equal(t, "den", guild.Name)
	assert.Len(t, c.State.DMChannels(), 1)
	self, ok := c.State.ClientUser()
	require.True(t, ok)
	assert.Equal(t, "jen", self.Username)
	// The placeholder token decodes to nothing, so ready backfills the id.
	assert.Equal(t, structs.Snowflake(31), c.SelfID())
}

func TestDuplicateReadyIsSuppressed(t *testing.T) {
	c := newTestClient(t)
	var readies atomic.Int32
	c.On(structs.EventReady, func(_ *Client, _ *Event) error { readies.Add(1); return nil })

	payload := mustJSON(t, readyEvent("s1", structs.Guild{ID: 10}))
	c.handleDispatch(structs.EventReady, payload)
	c.handleDispatch(structs.EventReady, payload)
	c.dispatch.close()

	assert.Equal(t, int32(1), readies.Load())
	_, ok := c.State.Guild(10)
	assert.True(t, ok)
}

func TestNewSessionReplacesWorld(t *testing.T) {
	c := newTestClient(t)
	var readies atomic.Int32
	c.On(structs.EventReady, func(_ *Client, _ *Event) error { readies.Add(1); return nil })

	c.handleDispatch(structs.EventReady, mustJSON(t, readyEvent("s1", structs.Guild{ID: 10})))
	c.handleDispatch(structs.EventReady, mustJSON(t, readyEvent("s2", structs.Guild{ID: 20})))
	c.dispatch.close()

	assert.Equal(t, int32(2), readies.Load())
	_, ok := c.State.Guild(10)
	assert.False(t, ok, "the old session's world should be gone")
	_, ok = c.State.Guild(20)
	assert.True(t, ok)
}

func TestUnknownEventKeepsWireName(t *testing.T) {
	c := newTestClient(t)
	events := make(chan *Event, 1)
	c.On(structs.EventAny, func(_ *Client, e *Event) error { events <- e; return nil })

	c.handleDispatch(structs.EventType("solar_flare"), []byte(`{"power":9000}`))

	select {
	case e := <-events:
		assert.Equal(t, structs.EventType("solar_flare"), e.Type)
		raw, ok := e.Data.([]byte)
		require.True(t, ok)
		assert.JSONEq(t, `{"power":9000}`, string(raw))
	case <-time.After(time.Second):
		t.Fatal("catch-all never saw the event")
	}
}

func TestUndecodableEventIsDropped(t *testing.T) {
	c := newTestClient(t)
	var calls atomic.Int32
	c.On(structs.EventAny, func(_ *Client, _ *Event) error { calls.Add(1); return nil })

	c.handleDispatch(structs.EventMessageCreate, []byte(`{"message":`))
	c.dispatch.close()

	assert.Equal(t, int32(0), calls.Load())
}

func TestSendMessageCachesTheResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/channels/55/messages", r.URL.Path)
		assert.Equal(t, "token", r.Header.Get("Authorization"))
		var body struct {
			Content string `json:"content"`
			Nonce   string `json:"nonce"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hi", body.Content)
		assert.NotEmpty(t, body.Nonce)
		json.NewEncoder(w).Encode(map[string]any{
			"id":         900,
			"channel_id": 55,
			"content":    body.Content,
		})
	}))
	t.Cleanup(server.Close)

	c := newTestClient(t, WithServer(Server{API: server.URL, Harmony: "ws://unreachable"}))
	msg, err := c.SendMessage(context.Background(), 55, "hi")
	require.NoError(t, err)
	assert.Equal(t, structs.Snowflake(900), msg.ID)

	cached, ok := c.State.Message(900)
	require.True(t, ok)
	require.NotNil(t, cached.Content)
	assert.Equal(t, "hi", *cached.Content)
}

func TestFetchUserPrefersFullCachedRecord(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/users/12":
			json.NewEncoder(w).Encode(map[string]any{"id": 12, "username": "remote"})
		case "/users/44":
			json.NewEncoder(w).Encode(map[string]any{"id": 44, "username": "upgraded"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	c := newTestClient(t, WithServer(Server{API: server.URL, Harmony: "ws://unreachable"}))
	c.State.UpsertUser(structs.User{ID: 31, Username: "jen"}, true)
	c.State.UpsertUser(structs.User{ID: 44, Username: "stub"}, false)

	// A full cached record answers without touching the API.
	user, err := c.FetchUser(context.Background(), 31)
	require.NoError(t, err)
	assert.Equal(t, "jen", user.Username)
	assert.Equal(t, int32(0), hits.Load())

	// A partial record is not good enough; the fetch upgrades it.
	user, err = c.FetchUser(context.Background(), 44)
	require.NoError(t, err)
	assert.Equal(t, "upgraded", user.Username)
	_, full := c.State.FullUser(44)
	assert.True(t, full)

	// An absent record falls through to REST and gets promoted.
	user, err = c.FetchUser(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, "remote", user.Username)
	assert.Equal(t, int32(2), hits.Load())
}
