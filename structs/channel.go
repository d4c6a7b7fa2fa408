package structs

type ChannelType string

const (
	ChannelTypeText         ChannelType = "text"
	ChannelTypeAnnouncement ChannelType = "announcement"
	ChannelTypeVoice        ChannelType = "voice"
	ChannelTypeCategory     ChannelType = "category"
	ChannelTypeDM           ChannelType = "dm"
	ChannelTypeGroup        ChannelType = "group"
)

func (t ChannelType) IsGuild() bool {
	switch t {
	case ChannelTypeText, ChannelTypeAnnouncement, ChannelTypeVoice, ChannelTypeCategory:
		return true
	}
	return false
}

func (t ChannelType) IsDM() bool {
	return t == ChannelTypeDM || t == ChannelTypeGroup
}

type PermissionOverwrite struct {
	ID Snowflake `json:"id"`
	PermissionPair
}

// Channel covers both guild channels and DM channels; Type discriminates.
// GuildID is zero for DM kinds.
type Channel struct {
	ID      Snowflake   `json:"id"`
	Type    ChannelType `json:"type"`
	GuildID Snowflake   `json:"guild_id,omitempty"`

	Name       *string               `json:"name,omitempty"`
	Position   *int                  `json:"position,omitempty"`
	Overwrites []PermissionOverwrite `json:"overwrites,omitempty"`
	ParentID   *Snowflake            `json:"parent_id,omitempty"`

	// Text-based guild channels.
	Topic    *string `json:"topic,omitempty"`
	NSFW     *bool   `json:"nsfw,omitempty"`
	Locked   *bool   `json:"locked,omitempty"`
	Slowmode *int    `json:"slowmode,omitempty"`

	// Voice.
	UserLimit *int `json:"user_limit,omitempty"`

	// DM and group DM.
	RecipientIDs []Snowflake `json:"recipient_ids,omitempty"`
	Icon         *string     `json:"icon,omitempty"`
	OwnerID      Snowflake   `json:"owner_id,omitempty"`
}
