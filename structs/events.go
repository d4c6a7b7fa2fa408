package structs

// EventType names one kind of gateway dispatch. The set is closed: frames
// with names outside it keep their wire name and only reach catch-all
// handlers.
type EventType string

const (
	EventReady              EventType = "ready"
	EventUserUpdate         EventType = "user_update"
	EventUserDelete         EventType = "user_delete"
	EventGuildCreate        EventType = "guild_create"
	EventGuildUpdate        EventType = "guild_update"
	EventGuildRemove        EventType = "guild_remove"
	EventChannelCreate      EventType = "channel_create"
	EventChannelUpdate      EventType = "channel_update"
	EventChannelDelete      EventType = "channel_delete"
	EventMemberJoin         EventType = "member_join"
	EventMemberUpdate       EventType = "member_update"
	EventMemberRemove       EventType = "member_remove"
	EventMessageCreate      EventType = "message_create"
	EventMessageUpdate      EventType = "message_update"
	EventMessageDelete      EventType = "message_delete"
	EventRelationshipCreate EventType = "relationship_create"
	EventRelationshipUpdate EventType = "relationship_update"
	EventRelationshipRemove EventType = "relationship_remove"
	EventPresenceUpdate     EventType = "presence_update"
	EventRoleUpdate         EventType = "role_update"

	// EventAny matches every dispatch, including names this library does not
	// know yet.
	EventAny EventType = "*"
)

type ReadyEvent struct {
	SessionID        string         `json:"session_id"`
	ResumeGatewayURL string         `json:"resume_gateway_url"`
	User             ClientUser     `json:"user"`
	Guilds           []Guild        `json:"guilds"`
	DMChannels       []Channel      `json:"dm_channels"`
	Presences        []Presence     `json:"presences"`
	Relationships    []Relationship `json:"relationships"`
}

type UserUpdateEvent struct {
	Before User `json:"before"`
	After  User `json:"after"`
}

type UserDeleteEvent struct {
	UserID Snowflake `json:"user_id"`
}

type GuildCreateEvent struct {
	Guild Guild   `json:"guild"`
	Nonce *string `json:"nonce"`
}

type GuildUpdateEvent struct {
	Before Guild `json:"before"`
	After  Guild `json:"after"`
}

// MemberRemoveType states why a member left: the account was deleted, the
// member left on their own, or a moderator kicked or banned them.
type MemberRemoveType string

const (
	MemberRemoveDelete MemberRemoveType = "delete"
	MemberRemoveLeave  MemberRemoveType = "leave"
	MemberRemoveKick   MemberRemoveType = "kick"
	MemberRemoveBan    MemberRemoveType = "ban"
)

type GuildRemoveEvent struct {
	GuildID     Snowflake        `json:"guild_id"`
	Type        MemberRemoveType `json:"type"`
	ModeratorID *Snowflake       `json:"moderator_id,omitempty"`
}

type ChannelCreateEvent struct {
	Channel Channel `json:"channel"`
	Nonce   *string `json:"nonce"`
}

type ChannelUpdateEvent struct {
	Before Channel `json:"before"`
	After  Channel `json:"after"`
}

type ChannelDeleteEvent struct {
	ChannelID Snowflake `json:"channel_id"`
	GuildID   Snowflake `json:"guild_id,omitempty"`
}

type MemberJoinEvent struct {
	Member Member  `json:"member"`
	Nonce  *string `json:"nonce"`
}

type MemberUpdateEvent struct {
	Before Member `json:"before"`
	After  Member `json:"after"`
}

type MemberRemoveEvent struct {
	GuildID     Snowflake        `json:"guild_id"`
	UserID      Snowflake        `json:"user_id"`
	Type        MemberRemoveType `json:"type"`
	ModeratorID *Snowflake       `json:"moderator_id,omitempty"`
}

type MessageCreateEvent struct {
	Message Message `json:"message"`
	Nonce   *string `json:"nonce"`
}

type MessageUpdateEvent struct {
	Before Message `json:"before"`
	After  Message `json:"after"`
}

type MessageDeleteEvent struct {
	ChannelID Snowflake `json:"channel_id"`
	MessageID Snowflake `json:"message_id"`
}

type RelationshipCreateEvent struct {
	Relationship Relationship `json:"relationship"`
}

type RelationshipUpdateEvent struct {
	Before Relationship `json:"before"`
	After  Relationship `json:"after"`
}

type RelationshipRemoveEvent struct {
	UserID Snowflake `json:"user_id"`
}

type PresenceUpdateEvent struct {
	Before Presence `json:"before"`
	After  Presence `json:"after"`
}

type RoleUpdateEvent struct {
	Before Role `json:"before"`
	After  Role `json:"after"`
}

var eventPayloads = map[EventType]func() any{
	EventReady:              func() any { return new(ReadyEvent) },
	EventUserUpdate:         func() any { return new(UserUpdateEvent) },
	EventUserDelete:         func() any { return new(UserDeleteEvent) },
	EventGuildCreate:        func() any { return new(GuildCreateEvent) },
	EventGuildUpdate:        func() any { return new(GuildUpdateEvent) },
	EventGuildRemove:        func() any { return new(GuildRemoveEvent) },
	EventChannelCreate:      func() any { return new(ChannelCreateEvent) },
	EventChannelUpdate:      func() any { return new(ChannelUpdateEvent) },
	EventChannelDelete:      func() any { return new(ChannelDeleteEvent) },
	EventMemberJoin:         func() any { return new(MemberJoinEvent) },
	EventMemberUpdate:       func() any { return new(MemberUpdateEvent) },
	EventMemberRemove:       func() any { return new(MemberRemoveEvent) },
	EventMessageCreate:      func() any { return new(MessageCreateEvent) },
	EventMessageUpdate:      func() any { return new(MessageUpdateEvent) },
	EventMessageDelete:      func() any { return new(MessageDeleteEvent) },
	EventRelationshipCreate: func() any { return new(RelationshipCreateEvent) },
	EventRelationshipUpdate: func() any { return new(RelationshipUpdateEvent) },
	EventRelationshipRemove: func() any { return new(RelationshipRemoveEvent) },
	EventPresenceUpdate:     func() any { return new(PresenceUpdateEvent) },
	EventRoleUpdate:         func() any { return new(RoleUpdateEvent) },
}

// NewEventPayload allocates the typed payload for a known event name.
// The second return is false for names outside the closed set.
func NewEventPayload(t EventType) (any, bool) {
	ctor, ok := eventPayloads[t]
	if !ok {
		return nil, false
	}
	return ctor(), true
}
