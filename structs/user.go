package structs

type User struct {
	ID            Snowflake `json:"id"`
	Username      string    `json:"username"`
	Discriminator int       `json:"discriminator"`
	Avatar        *string   `json:"avatar"`
	Banner        *string   `json:"banner"`
	Bio           *string   `json:"bio"`
	Flags         int       `json:"flags"`
}

// Tag renders the username#discriminator pair shown in clients.
func (u User) Tag() string {
	return u.Username + "#" + padDiscriminator(u.Discriminator)
}

func padDiscriminator(d int) string {
	s := []byte{'0', '0', '0', '0'}
	for i := 3; i >= 0 && d > 0; i-- {
		s[i] = byte('0' + d%10)
		d /= 10
	}
	return string(s)
}

// ClientUser is the authenticated user; only visible to its own session.
type ClientUser struct {
	User
	Email string `json:"email"`
}

type RelationshipType string

const (
	RelationshipFriend          RelationshipType = "friend"
	RelationshipOutgoingRequest RelationshipType = "outgoing_request"
	RelationshipIncomingRequest RelationshipType = "incoming_request"
	RelationshipBlocked         RelationshipType = "blocked"
)

type Relationship struct {
	User User             `json:"user"`
	Type RelationshipType `json:"type"`
}

// UserID keys the relationship: one relationship per peer user.
func (r Relationship) UserID() Snowflake {
	return r.User.ID
}
