package state

import "github.com/hendrywilliam/adapt/structs"

// Partial payloads never carry every field, so each merge copies only what
// is present: non-nil pointers, non-zero scalars. Full payloads replace the
// record wholesale before these run.

func mergeUser(dst *structs.User, src structs.User) {
	if src.Username != "" {
		dst.Username = src.Username
	}
	if src.Discriminator != 0 {
		dst.Discriminator = src.Discriminator
	}
	if src.Avatar != nil {
		dst.Avatar = src.Avatar
	}
	if src.Banner != nil {
		dst.Banner = src.Banner
	}
	if src.Bio != nil {
		dst.Bio = src.Bio
	}
	if src.Flags != 0 {
		dst.Flags = src.Flags
	}
}

func mergeGuild(dst *structs.Guild, src structs.Guild) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Description != nil {
		dst.Description = src.Description
	}
	if src.Icon != nil {
		dst.Icon = src.Icon
	}
	if src.Banner != nil {
		dst.Banner = src.Banner
	}
	if src.OwnerID != 0 {
		dst.OwnerID = src.OwnerID
	}
	if src.Flags != 0 {
		dst.Flags = src.Flags
	}
	if src.MemberCount != nil {
		dst.MemberCount = src.MemberCount
	}
	if src.VanityURL != nil {
		dst.VanityURL = src.VanityURL
	}
	if src.Roles != nil {
		dst.Roles = src.Roles
	}
}

func mergeChannel(dst *structs.Channel, src structs.Channel) {
	if src.Type != "" {
		dst.Type = src.Type
	}
	if src.GuildID != 0 {
		dst.GuildID = src.GuildID
	}
	if src.Name != nil {
		dst.Name = src.Name
	}
	if src.Position != nil {
		dst.Position = src.Position
	}
	if src.Overwrites != nil {
		dst.Overwrites = src.Overwrites
	}
	if src.ParentID != nil {
		dst.ParentID = src.ParentID
	}
	if src.Topic != nil {
		dst.Topic = src.Topic
	}
	if src.NSFW != nil {
		dst.NSFW = src.NSFW
	}
	if src.Locked != nil {
		dst.Locked = src.Locked
	}
	if src.Slowmode != nil {
		dst.Slowmode = src.Slowmode
	}
	if src.UserLimit != nil {
		dst.UserLimit = src.UserLimit
	}
	if src.RecipientIDs != nil {
		dst.RecipientIDs = src.RecipientIDs
	}
	if src.Icon != nil {
		dst.Icon = src.Icon
	}
	if src.OwnerID != 0 {
		dst.OwnerID = src.OwnerID
	}
}

func mergeMember(dst *structs.Member, src structs.Member) {
	mergeUser(&dst.User, src.User)
	if src.GuildID != 0 {
		dst.GuildID = src.GuildID
	}
	if src.Nick != nil {
		dst.Nick = src.Nick
	}
	if src.Roles != nil {
		dst.Roles = src.Roles
	}
	if !src.JoinedAt.IsZero() {
		dst.JoinedAt = src.JoinedAt
	}
}

func mergeMessage(dst *structs.Message, src structs.Message) {
	if src.RevisionID != nil {
		dst.RevisionID = src.RevisionID
	}
	if src.ChannelID != 0 {
		dst.ChannelID = src.ChannelID
	}
	if src.AuthorID != nil {
		dst.AuthorID = src.AuthorID
	}
	if src.Author != nil {
		dst.Author = src.Author
	}
	if src.Type != "" {
		dst.Type = src.Type
	}
	if src.Content != nil {
		dst.Content = src.Content
	}
	if src.Embeds != nil {
		dst.Embeds = src.Embeds
	}
	if src.Attachments != nil {
		dst.Attachments = src.Attachments
	}
	if src.Flags != 0 {
		dst.Flags = src.Flags
	}
	if src.Stars != 0 {
		dst.Stars = src.Stars
	}
	if src.UserID != nil {
		dst.UserID = src.UserID
	}
	if src.PinnedMessageID != nil {
		dst.PinnedMessageID = src.PinnedMessageID
	}
	if src.PinnedBy != nil {
		dst.PinnedBy = src.PinnedBy
	}
}

func mergeRelationship(dst *structs.Relationship, src structs.Relationship) {
	mergeUser(&dst.User, src.User)
	if src.Type != "" {
		dst.Type = src.Type
	}
}
