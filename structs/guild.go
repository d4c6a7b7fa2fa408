package structs

import "time"

type GuildMemberCount struct {
	Total  int  `json:"total"`
	Online *int `json:"online"`
}

// Guild carries the partial shape on every payload; Members, Roles and
// Channels are only present when the server was asked to include them
// (ready payloads, guild_create, REST fetches with the include flags).
type Guild struct {
	ID          Snowflake         `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description"`
	Icon        *string           `json:"icon"`
	Banner      *string           `json:"banner"`
	OwnerID     Snowflake         `json:"owner_id"`
	Flags       int               `json:"flags"`
	MemberCount *GuildMemberCount `json:"member_count"`
	VanityURL   *string           `json:"vanity_url"`

	Members  []Member  `json:"members,omitempty"`
	Roles    []Role    `json:"roles,omitempty"`
	Channels []Channel `json:"channels,omitempty"`
}

// Member is a user inside one guild; the user fields come inline.
type Member struct {
	User
	GuildID  Snowflake   `json:"guild_id"`
	Nick     *string     `json:"nick"`
	Roles    []Snowflake `json:"roles"`
	JoinedAt time.Time   `json:"joined_at"`
}

func (m Member) DisplayName() string {
	if m.Nick != nil && *m.Nick != "" {
		return *m.Nick
	}
	return m.Username
}

type PermissionPair struct {
	Allow int64 `json:"allow"`
	Deny  int64 `json:"deny"`
}

type Role struct {
	ID          Snowflake      `json:"id"`
	GuildID     Snowflake      `json:"guild_id"`
	Name        string         `json:"name"`
	Color       *int           `json:"color"`
	Permissions PermissionPair `json:"permissions"`
	Position    int            `json:"position"`
	Flags       int            `json:"flags"`
}
