package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/hendrywilliam/adapt/structs"
)

// TokenRetrievalMethod tells login what to do with the account's existing
// tokens.
type TokenRetrievalMethod = string

const (
	// TokenRetrievalNew issues a new token, keeping existing ones valid.
	TokenRetrievalNew TokenRetrievalMethod = "new"
	// TokenRetrievalRevoke revokes all existing tokens and issues a new one.
	TokenRetrievalRevoke TokenRetrievalMethod = "revoke"
	// TokenRetrievalReuse returns the existing token if the account has one.
	TokenRetrievalReuse TokenRetrievalMethod = "reuse"
)

type LoginResponse struct {
	UserID structs.Snowflake `json:"user_id"`
	Token  string            `json:"token"`
}

type CreateUserResponse struct {
	ID    structs.Snowflake `json:"id"`
	Token string            `json:"token"`
}

// Login trades credentials for a token and installs it on the client.
func (c *Client) Login(ctx context.Context, email string, password string, method TokenRetrievalMethod) (*LoginResponse, error) {
	if method == "" {
		method = TokenRetrievalReuse
	}
	payload := map[string]any{
		"email":    email,
		"password": password,
		"method":   method,
	}
	res := &LoginResponse{}
	if err := c.do(ctx, http.MethodPost, "/login", nil, payload, res); err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return res, nil
}

// CreateUser registers a new account and installs its token on the client.
func (c *Client) CreateUser(ctx context.Context, username string, email string, password string) (*CreateUserResponse, error) {
	payload := map[string]any{
		"username": username,
		"email":    email,
		"password": password,
	}
	res := &CreateUserResponse{}
	if err := c.do(ctx, http.MethodPost, "/users", nil, payload, res); err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return res, nil
}

// Users

func (c *Client) GetUser(ctx context.Context, userID structs.Snowflake) (*structs.User, error) {
	user := &structs.User{}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d", userID), nil, nil, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *Client) GetSelf(ctx context.Context) (*structs.ClientUser, error) {
	user := &structs.ClientUser{}
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, user); err != nil {
		return nil, err
	}
	return user, nil
}

type EditSelfParams struct {
	Username string  `json:"username,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
	Banner   *string `json:"banner,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}

func (c *Client) EditSelf(ctx context.Context, params EditSelfParams) (*structs.ClientUser, error) {
	user := &structs.ClientUser{}
	if err := c.do(ctx, http.MethodPatch, "/users/me", nil, params, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteSelf permanently deletes the account. The password reconfirms
// ownership.
func (c *Client) DeleteSelf(ctx context.Context, password string) error {
	return c.do(ctx, http.MethodDelete, "/users/me", nil, map[string]any{"password": password}, nil)
}

// Relationships

func (c *Client) GetRelationships(ctx context.Context) ([]structs.Relationship, error) {
	var relationships []structs.Relationship
	if err := c.do(ctx, http.MethodGet, "/relationships", nil, nil, &relationships); err != nil {
		return nil, err
	}
	return relationships, nil
}

func (c *Client) SendFriendRequest(ctx context.Context, username string, discriminator int) (*structs.Relationship, error) {
	payload := map[string]any{
		"username":      username,
		"discriminator": discriminator,
	}
	relationship := &structs.Relationship{}
	if err := c.do(ctx, http.MethodPost, "/relationships/friends", nil, payload, relationship); err != nil {
		return nil, err
	}
	return relationship, nil
}

func (c *Client) AcceptFriendRequest(ctx context.Context, userID structs.Snowflake) (*structs.Relationship, error) {
	relationship := &structs.Relationship{}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/relationships/friends/%d", userID), nil, nil, relationship); err != nil {
		return nil, err
	}
	return relationship, nil
}

func (c *Client) BlockUser(ctx context.Context, userID structs.Snowflake) (*structs.Relationship, error) {
	relationship := &structs.Relationship{}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/relationships/blocks/%d", userID), nil, nil, relationship); err != nil {
		return nil, err
	}
	return relationship, nil
}

func (c *Client) DeleteRelationship(ctx context.Context, userID structs.Snowflake) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/relationships/%d", userID), nil, nil, nil)
}

// Channels

func (c *Client) GetChannel(ctx context.Context, channelID structs.Snowflake) (*structs.Channel, error) {
	channel := &structs.Channel{}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/channels/%d", channelID), nil, nil, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

func (c *Client) DeleteChannel(ctx context.Context, channelID structs.Snowflake) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/channels/%d", channelID), nil, nil, nil)
}

func (c *Client) GetGuildChannels(ctx context.Context, guildID structs.Snowflake) ([]structs.Channel, error) {
	var channels []structs.Channel
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/guilds/%d/channels", guildID), nil, nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

func (c *Client) GetDMChannels(ctx context.Context) ([]structs.Channel, error) {
	var channels []structs.Channel
	if err := c.do(ctx, http.MethodGet, "/users/me/channels", nil, nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

func (c *Client) CreateDMChannel(ctx context.Context, recipientID structs.Snowflake) (*structs.Channel, error) {
	payload := map[string]any{
		"type":         structs.ChannelTypeDM,
		"recipient_id": recipientID,
	}
	channel := &structs.Channel{}
	if err := c.do(ctx, http.MethodPost, "/users/me/channels", nil, payload, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

func (c *Client) CreateGroupDMChannel(ctx context.Context, name string, recipientIDs []structs.Snowflake) (*structs.Channel, error) {
	payload := map[string]any{
		"type":          structs.ChannelTypeGroup,
		"name":          name,
		"recipient_ids": recipientIDs,
	}
	channel := &structs.Channel{}
	if err := c.do(ctx, http.MethodPost, "/users/me/channels", nil, payload, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

// Messages

// MessageHistoryQuery narrows GetMessageHistory. A zero Before, After or
// UserID means no bound; a zero Limit means the server default of 100.
type MessageHistoryQuery struct {
	Before      structs.Snowflake
	After       structs.Snowflake
	Limit       int
	UserID      structs.Snowflake
	OldestFirst bool
}

func (q MessageHistoryQuery) values() url.Values {
	v := url.Values{}
	v.Set("oldest_first", strconv.FormatBool(q.OldestFirst))
	if q.Before != 0 {
		v.Set("before", q.Before.String())
	}
	if q.After != 0 {
		v.Set("after", q.After.String())
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	v.Set("limit", strconv.Itoa(limit))
	if q.UserID != 0 {
		v.Set("user_id", q.UserID.String())
	}
	return v
}

func (c *Client) GetMessageHistory(ctx context.Context, channelID structs.Snowflake, query MessageHistoryQuery) ([]structs.Message, error) {
	var messages []structs.Message
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/channels/%d/messages", channelID), query.values(), nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) GetMessage(ctx context.Context, channelID structs.Snowflake, messageID structs.Snowflake) (*structs.Message, error) {
	message := &structs.Message{}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/channels/%d/messages/%d", channelID, messageID), nil, nil, message); err != nil {
		return nil, err
	}
	return message, nil
}

// CreateMessage posts content to a channel. A fresh nonce is attached so the
// echoed dispatch can be told apart from other users' messages.
func (c *Client) CreateMessage(ctx context.Context, channelID structs.Snowflake, content string) (*structs.Message, error) {
	payload := map[string]any{
		"content": content,
		"nonce":   uuid.NewString(),
	}
	message := &structs.Message{}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%d/messages", channelID), nil, payload, message); err != nil {
		return nil, err
	}
	return message, nil
}

func (c *Client) EditMessage(ctx context.Context, channelID structs.Snowflake, messageID structs.Snowflake, content string) (*structs.Message, error) {
	message := &structs.Message{}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/channels/%d/messages/%d", channelID, messageID), nil, map[string]any{"content": content}, message); err != nil {
		return nil, err
	}
	return message, nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID structs.Snowflake, messageID structs.Snowflake) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/channels/%d/messages/%d", channelID, messageID), nil, nil, nil)
}

// Guilds

// GuildQuery asks the server to inline the named collections on returned
// guilds.
type GuildQuery struct {
	Channels bool
	Members  bool
	Roles    bool
}

func (q GuildQuery) values() url.Values {
	v := url.Values{}
	v.Set("channels", strconv.FormatBool(q.Channels))
	v.Set("members", strconv.FormatBool(q.Members))
	v.Set("roles", strconv.FormatBool(q.Roles))
	return v
}

func (c *Client) GetGuilds(ctx context.Context, query GuildQuery) ([]structs.Guild, error) {
	var guilds []structs.Guild
	if err := c.do(ctx, http.MethodGet, "/guilds", query.values(), nil, &guilds); err != nil {
		return nil, err
	}
	return guilds, nil
}

func (c *Client) GetGuild(ctx context.Context, guildID structs.Snowflake, query GuildQuery) (*structs.Guild, error) {
	guild := &structs.Guild{}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/guilds/%d", guildID), query.values(), nil, guild); err != nil {
		return nil, err
	}
	return guild, nil
}

type CreateGuildParams struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon,omitempty"`
	Banner      *string `json:"banner,omitempty"`
	Public      bool    `json:"public"`
	Nonce       string  `json:"nonce,omitempty"`
}

func (c *Client) CreateGuild(ctx context.Context, params CreateGuildParams) (*structs.Guild, error) {
	if params.Nonce == "" {
		params.Nonce = uuid.NewString()
	}
	guild := &structs.Guild{}
	if err := c.do(ctx, http.MethodPost, "/guilds", nil, params, guild); err != nil {
		return nil, err
	}
	return guild, nil
}

type EditGuildParams struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	Banner      *string `json:"banner,omitempty"`
	Public      *bool   `json:"public,omitempty"`
}

func (c *Client) EditGuild(ctx context.Context, guildID structs.Snowflake, params EditGuildParams) (*structs.Guild, error) {
	guild := &structs.Guild{}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/guilds/%d", guildID), nil, params, guild); err != nil {
		return nil, err
	}
	return guild, nil
}

// DeleteGuild deletes an owned guild. The password reconfirms ownership; it
// is omitted when empty.
func (c *Client) DeleteGuild(ctx context.Context, guildID structs.Snowflake, password string) error {
	var payload any
	if password != "" {
		payload = map[string]any{"password": password}
	}
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/guilds/%d", guildID), nil, payload, nil)
}

// Members

func (c *Client) GetMembers(ctx context.Context, guildID structs.Snowflake) ([]structs.Member, error) {
	var members []structs.Member
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/guilds/%d/members", guildID), nil, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Client) GetMember(ctx context.Context, guildID structs.Snowflake, userID structs.Snowflake) (*structs.Member, error) {
	member := &structs.Member{}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/guilds/%d/members/%d", guildID, userID), nil, nil, member); err != nil {
		return nil, err
	}
	return member, nil
}

func (c *Client) GetOwnMember(ctx context.Context, guildID structs.Snowflake) (*structs.Member, error) {
	member := &structs.Member{}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/guilds/%d/members/me", guildID), nil, nil, member); err != nil {
		return nil, err
	}
	return member, nil
}

// EditOwnMember changes the client user's nick in a guild. A nil nick clears
// it.
func (c *Client) EditOwnMember(ctx context.Context, guildID structs.Snowflake, nick *string) (*structs.Member, error) {
	member := &structs.Member{}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/guilds/%d/members/me", guildID), nil, map[string]any{"nick": nick}, member); err != nil {
		return nil, err
	}
	return member, nil
}

type EditMemberParams struct {
	Nick  *string             `json:"nick,omitempty"`
	Roles []structs.Snowflake `json:"roles,omitempty"`
}

func (c *Client) EditMember(ctx context.Context, guildID structs.Snowflake, userID structs.Snowflake, params EditMemberParams) (*structs.Member, error) {
	member := &structs.Member{}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/guilds/%d/members/%d", guildID, userID), nil, params, member); err != nil {
		return nil, err
	}
	return member, nil
}

func (c *Client) KickMember(ctx context.Context, guildID structs.Snowflake, userID structs.Snowflake) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/guilds/%d/members/%d", guildID, userID), nil, nil, nil)
}

func (c *Client) LeaveGuild(ctx context.Context, guildID structs.Snowflake) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/guilds/%d/members/me", guildID), nil, nil, nil)
}
