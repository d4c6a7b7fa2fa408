// Package adapt is a Go client for the adapt chat platform. A Client holds
// one authenticated gateway connection, keeps a local cache of the entities
// the server streams at it, and fans decoded events out to registered
// handlers.
//
// Minimal bot:
//
//	c := adapt.New(os.Getenv("ADAPT_TOKEN"))
//	c.On(structs.EventMessageCreate, func(c *adapt.Client, e *adapt.Event) error {
//		msg := e.Data.(*structs.MessageCreateEvent).Message
//		if msg.Content != nil && *msg.Content == "!ping" {
//			_, err := c.SendMessage(context.Background(), msg.ChannelID, "pong")
//			return err
//		}
//		return nil
//	})
//	c.Run(context.Background())
package adapt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hendrywilliam/adapt/gateway"
	"github.com/hendrywilliam/adapt/rest"
	"github.com/hendrywilliam/adapt/state"
	"github.com/hendrywilliam/adapt/structs"
)

var (
	ErrClientClosed = errors.New("adapt: client is closed")
	// ErrNoToken means Connect ran before a token was supplied, either to New
	// or through Login.
	ErrNoToken = errors.New("adapt: no token")
)

// Client is one connection to adapt. Rest and State are safe for direct use
// from any goroutine.
type Client struct {
	// Rest talks to the HTTP API with the client's token.
	Rest *rest.Client
	// State is the entity cache, kept current by gateway events.
	State *state.State

	gw       *gateway.Gateway
	dispatch *dispatcher
	server   Server
	codec    gateway.Codec
	log      *slog.Logger

	token  string
	selfID structs.Snowflake

	ready     chan struct{}
	readyOnce sync.Once
	// lastReadySession is only touched on the serialized dispatch path.
	lastReadySession string

	closeOnce sync.Once
}

func New(token string, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Client{
		server: o.server,
		codec:  o.codec,
		log:    o.logger,
		token:  token,
		ready:  make(chan struct{}),
	}
	c.selfID, _ = structs.ExtractUserID(token)
	c.Rest = rest.New(rest.Arguments{
		BaseURL:    o.server.API,
		Token:      token,
		HTTPClient: o.httpClient,
		Logger:     o.logger,
	})
	c.State = state.New(o.maxMessages)
	c.dispatch = newDispatcher(o.logger, o.onError)
	c.gw = gateway.New(gateway.Arguments{
		Token:                  token,
		URL:                    o.server.Harmony,
		Codec:                  o.codec,
		Compress:               o.compress,
		Status:                 o.status,
		Backoff:                o.backoff,
		HeartbeatMissThreshold: o.missThreshold,
		OnDispatch:             c.handleDispatch,
		OnOpen:                 c.handleOpen,
		Logger:                 o.logger,
	})
	return c
}

// Login trades credentials for a token and installs it for both the HTTP
// API and the gateway. Call it before Connect when New got no token.
func (c *Client) Login(ctx context.Context, email string, password string) error {
	res, err := c.Rest.Login(ctx, email, password, rest.TokenRetrievalReuse)
	if err != nil {
		return err
	}
	c.token = res.Token
	c.selfID = res.UserID
	c.gw.SetToken(res.Token)
	return nil
}

// Connect opens the gateway and returns once the first handshake lands.
// Reconnects after that run in the background.
func (c *Client) Connect(ctx context.Context) error {
	if c.token == "" {
		return ErrNoToken
	}
	return c.gw.Open(ctx)
}

// Run connects and blocks until the context ends, Close is called, or the
// connection dies fatally. It returns nil on a clean shutdown.
func (c *Client) Run(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		c.Close()
		return err
	}
	<-c.gw.Done()
	c.Close()
	return c.gw.Err()
}

// Close tears the connection down and joins every in-flight handler.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.gw.Close()
		c.dispatch.close()
		c.Rest.CloseIdleConnections()
	})
	return err
}

// WaitUntilReady blocks until the first ready snapshot has been applied.
func (c *Client) WaitUntilReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.gw.Done():
		if err := c.gw.Err(); err != nil {
			return err
		}
		return ErrClientClosed
	}
}

// On registers fn for every event of type t. Use structs.EventAny to see
// everything.
func (c *Client) On(t structs.EventType, fn HandlerFunc) Registration {
	return c.dispatch.add(t, fn, false)
}

// Once registers fn for the next event of type t only.
func (c *Client) Once(t structs.EventType, fn HandlerFunc) Registration {
	return c.dispatch.add(t, fn, true)
}

// WaitFor blocks until an event of type t passes check. A nil check matches
// the first event of the type.
func (c *Client) WaitFor(ctx context.Context, t structs.EventType, check func(e *Event) bool) (*Event, error) {
	return c.dispatch.wait(ctx, t, check)
}

// SelfID is the authenticated user's id, known as soon as a token is held.
func (c *Client) SelfID() structs.Snowflake { return c.selfID }

// Status reports the connection state, e.g. "ready" or "reconnecting".
func (c *Client) Status() gateway.Status { return c.gw.Status() }

// Done closes once the connection has shut down for good, whether by Close
// or by a fatal error. Err on the gateway has the cause.
func (c *Client) Done() <-chan struct{} { return c.gw.Done() }

// Latency is the round trip of the last acknowledged heartbeat.
func (c *Client) Latency() time.Duration { return c.gw.Latency() }

// SetStatus advertises a new presence on the live connection.
func (c *Client) SetStatus(ctx context.Context, status structs.Status, customStatus *string) error {
	return c.gw.UpdatePresence(ctx, status, customStatus)
}

// SendMessage posts content to a channel and caches the created message.
func (c *Client) SendMessage(ctx context.Context, channelID structs.Snowflake, content string) (*structs.Message, error) {
	msg, err := c.Rest.CreateMessage(ctx, channelID, content)
	if err != nil {
		return nil, err
	}
	c.State.UpsertMessage(*msg, true)
	return msg, nil
}

// FetchUser returns the cached record when it is already full, otherwise
// reads the user from the API and promotes it.
func (c *Client) FetchUser(ctx context.Context, userID structs.Snowflake) (*structs.User, error) {
	if user, ok := c.State.FullUser(userID); ok {
		return &user, nil
	}
	user, err := c.Rest.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.State.UpsertUser(*user, true)
	return user, nil
}

// FetchSelf reads the authenticated user from the API and caches it.
func (c *Client) FetchSelf(ctx context.Context) (*structs.ClientUser, error) {
	user, err := c.Rest.GetSelf(ctx)
	if err != nil {
		return nil, err
	}
	c.State.SetClientUser(*user)
	return user, nil
}

// FetchGuild reads a guild with all collections inlined and caches it. It
// always hits the API; cached guilds keep their collections in the member
// and channel stores, not on the record.
func (c *Client) FetchGuild(ctx context.Context, guildID structs.Snowflake) (*structs.Guild, error) {
	guild, err := c.Rest.GetGuild(ctx, guildID, rest.GuildQuery{Channels: true, Members: true, Roles: true})
	if err != nil {
		return nil, err
	}
	c.State.UpsertGuild(*guild, true)
	return guild, nil
}

// FetchChannel returns the cached record when it is already full, otherwise
// reads the channel from the API and promotes it.
func (c *Client) FetchChannel(ctx context.Context, channelID structs.Snowflake) (*structs.Channel, error) {
	if channel, ok := c.State.FullChannel(channelID); ok {
		return &channel, nil
	}
	channel, err := c.Rest.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	c.State.UpsertChannel(*channel, true)
	return channel, nil
}

// FetchMember returns the cached record when it is already full, otherwise
// reads the guild member from the API and promotes it.
func (c *Client) FetchMember(ctx context.Context, guildID structs.Snowflake, userID structs.Snowflake) (*structs.Member, error) {
	if member, ok := c.State.FullMember(guildID, userID); ok {
		return &member, nil
	}
	member, err := c.Rest.GetMember(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	c.State.UpsertMember(*member, true)
	return member, nil
}

// FetchMessages reads channel history and caches every returned message.
func (c *Client) FetchMessages(ctx context.Context, channelID structs.Snowflake, query rest.MessageHistoryQuery) ([]structs.Message, error) {
	messages, err := c.Rest.GetMessageHistory(ctx, channelID, query)
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		c.State.UpsertMessage(m, true)
	}
	return messages, nil
}

func (c *Client) handleOpen(resumed bool) {
	if resumed {
		c.log.Debug("session resumed, cache retained")
	}
}

// handleDispatch is the single ordered processing path: decode the payload,
// mutate the cache, then fan out to handlers. The gateway guarantees calls
// never overlap.
func (c *Client) handleDispatch(t structs.EventType, data []byte) {
	payload, known := structs.NewEventPayload(t)
	if !known {
		c.log.Debug("event outside the known set", "event", t)
		raw := make([]byte, len(data))
		copy(raw, data)
		c.dispatch.dispatch(c, &Event{Type: t, Data: raw})
		return
	}
	if err := c.codec.Unmarshal(data, payload); err != nil {
		c.log.Warn("dropping undecodable event", "event", t, "error", err)
		return
	}
	if t == structs.EventReady {
		re := payload.(*structs.ReadyEvent)
		if re.SessionID == c.lastReadySession {
			c.log.Debug("duplicate ready suppressed", "session_id", re.SessionID)
			return
		}
		if c.lastReadySession != "" {
			// A new session replaces the old world.
			c.State.Reset()
		}
		c.lastReadySession = re.SessionID
	}
	c.apply(t, payload)
	c.dispatch.dispatch(c, &Event{Type: t, Data: payload})
	if t == structs.EventReady {
		c.readyOnce.Do(func() { close(c.ready) })
	}
}

// apply folds one event into the cache before any handler sees it.
func (c *Client) apply(t structs.EventType, payload any) {
	switch e := payload.(type) {
	case *structs.ReadyEvent:
		c.State.ApplyReady(e)
		if c.selfID == 0 {
			c.selfID = e.User.ID
		}
	case *structs.UserUpdateEvent:
		c.State.UpsertUser(e.After, true)
	case *structs.UserDeleteEvent:
		c.State.RemoveUser(e.UserID)
	case *structs.GuildCreateEvent:
		c.State.UpsertGuild(e.Guild, true)
	case *structs.GuildUpdateEvent:
		c.State.UpsertGuild(e.After, true)
	case *structs.GuildRemoveEvent:
		c.State.RemoveGuild(e.GuildID)
	case *structs.ChannelCreateEvent:
		c.State.UpsertChannel(e.Channel, true)
	case *structs.ChannelUpdateEvent:
		c.State.UpsertChannel(e.After, true)
	case *structs.ChannelDeleteEvent:
		c.State.RemoveChannel(e.ChannelID)
	case *structs.MemberJoinEvent:
		c.State.UpsertMember(e.Member, true)
	case *structs.MemberUpdateEvent:
		c.State.UpsertMember(e.After, true)
	case *structs.MemberRemoveEvent:
		c.State.RemoveMember(e.GuildID, e.UserID)
	case *structs.MessageCreateEvent:
		c.State.UpsertMessage(e.Message, true)
	case *structs.MessageUpdateEvent:
		c.State.UpsertMessage(e.After, true)
	case *structs.MessageDeleteEvent:
		c.State.RemoveMessage(e.MessageID)
	case *structs.RelationshipCreateEvent:
		c.State.UpsertRelationship(e.Relationship, true)
	case *structs.RelationshipUpdateEvent:
		c.State.UpsertRelationship(e.After, true)
	case *structs.RelationshipRemoveEvent:
		c.State.RemoveRelationship(e.UserID)
	case *structs.RoleUpdateEvent:
		c.State.UpsertRole(e.After)
	case *structs.PresenceUpdateEvent:
		// Presences are not cached; handlers see them as they pass by.
	default:
		c.log.Debug("event with no cache effect", "event", t)
	}
}

// String implements fmt.Stringer for quick diagnostics.
func (c *Client) String() string {
	return fmt.Sprintf("adapt.Client(self=%d, status=%s)", c.selfID, c.gw.Status())
}
