package structs

import "time"

type EmbedType string

const (
	EmbedTypeRich  EmbedType = "rich"
	EmbedTypeImage EmbedType = "image"
	EmbedTypeVideo EmbedType = "video"
	EmbedTypeMeta  EmbedType = "meta"
)

type EmbedAuthor struct {
	Name    string  `json:"name"`
	URL     *string `json:"url,omitempty"`
	IconURL *string `json:"icon_url,omitempty"`
}

type EmbedFooter struct {
	Text    string  `json:"text"`
	IconURL *string `json:"icon_url,omitempty"`
}

type EmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Align string `json:"align,omitempty"`
}

type Embed struct {
	Type        EmbedType    `json:"type"`
	Title       *string      `json:"title,omitempty"`
	Description *string      `json:"description,omitempty"`
	URL         *string      `json:"url,omitempty"`
	Timestamp   *time.Time   `json:"timestamp,omitempty"`
	Color       *int         `json:"color,omitempty"`
	Hue         *int         `json:"hue,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Image       *string      `json:"image,omitempty"`
	Thumbnail   *string      `json:"thumbnail,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

type Attachment struct {
	ID          Snowflake `json:"id"`
	Filename    string    `json:"filename"`
	Size        int       `json:"size"`
	URL         string    `json:"url"`
	Description *string   `json:"description,omitempty"`
}

type MessageType string

const (
	MessageTypeDefault MessageType = "default"
	MessageTypeJoin    MessageType = "join"
	MessageTypeLeave   MessageType = "leave"
	MessageTypePin     MessageType = "pin"
)

type Message struct {
	ID          Snowflake    `json:"id"`
	RevisionID  *Snowflake   `json:"revision_id"`
	ChannelID   Snowflake    `json:"channel_id"`
	AuthorID    *Snowflake   `json:"author_id"`
	Author      *Member      `json:"author"`
	Type        MessageType  `json:"type"`
	Content     *string      `json:"content"`
	Embeds      []Embed      `json:"embeds"`
	Attachments []Attachment `json:"attachments"`
	Flags       int          `json:"flags"`
	Stars       int          `json:"stars"`

	// Join and leave messages.
	UserID *Snowflake `json:"user_id,omitempty"`
	// Pin messages.
	PinnedMessageID *Snowflake `json:"pinned_message_id,omitempty"`
	PinnedBy        *Snowflake `json:"pinned_by,omitempty"`
}
