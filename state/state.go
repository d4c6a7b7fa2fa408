// Package state mirrors server-side entities as gateway events arrive.
//
// Every store is keyed and flat: cross references between entities go by id,
// never by embedded pointer. Records carry a completeness tier; partial
// references merge into existing records without demoting them. Mutation
// happens on the client's frame-processing goroutine, reads copy records out
// under a shared lock, so handlers never observe a half-written record.
package state

import (
	"cmp"
	"slices"
	"sync"

	"github.com/hendrywilliam/adapt/structs"
)

// MemberKey identifies a member: one user inside one guild.
type MemberKey struct {
	GuildID structs.Snowflake
	UserID  structs.Snowflake
}

type entry[T any] struct {
	value T
	full  bool
}

type State struct {
	mu sync.RWMutex

	clientUser *structs.ClientUser

	users         map[structs.Snowflake]*entry[structs.User]
	guilds        map[structs.Snowflake]*entry[structs.Guild]
	channels      map[structs.Snowflake]*entry[structs.Channel]
	members       map[MemberKey]*entry[structs.Member]
	relationships map[structs.Snowflake]*entry[structs.Relationship]

	// Messages are the one capped store: insertion order is kept and the
	// oldest entry is evicted past maxMessages. Zero disables the cap.
	messages     map[structs.Snowflake]*entry[structs.Message]
	messageOrder []structs.Snowflake
	maxMessages  int
}

func New(maxMessages int) *State {
	return &State{
		users:         make(map[structs.Snowflake]*entry[structs.User]),
		guilds:        make(map[structs.Snowflake]*entry[structs.Guild]),
		channels:      make(map[structs.Snowflake]*entry[structs.Channel]),
		members:       make(map[MemberKey]*entry[structs.Member]),
		relationships: make(map[structs.Snowflake]*entry[structs.Relationship]),
		messages:      make(map[structs.Snowflake]*entry[structs.Message]),
		maxMessages:   maxMessages,
	}
}

func upsert[K comparable, T any](m map[K]*entry[T], key K, v T, full bool, merge func(*T, T)) {
	e, ok := m[key]
	if !ok {
		m[key] = &entry[T]{value: v, full: full}
		return
	}
	if full {
		e.value = v
		e.full = true
		return
	}
	merge(&e.value, v)
}

func lookup[K comparable, T any](m map[K]*entry[T], key K) (T, bool) {
	if e, ok := m[key]; ok {
		return e.value, true
	}
	var zero T
	return zero, false
}

func lookupFull[K comparable, T any](m map[K]*entry[T], key K) (T, bool) {
	if e, ok := m[key]; ok && e.full {
		return e.value, true
	}
	var zero T
	return zero, false
}

// ApplyReady seeds the cache from the initial state snapshot. It runs before
// ready handlers are dispatched, so they observe a populated cache.
func (s *State) ApplyReady(re *structs.ReadyEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := re.User
	s.clientUser = &u
	upsert(s.users, u.ID, u.User, true, mergeUser)
	for _, g := range re.Guilds {
		s.upsertGuild(g, true)
	}
	for _, c := range re.DMChannels {
		s.upsertChannel(c, true)
	}
	for _, r := range re.Relationships {
		s.upsertRelationship(r, true)
	}
}

// Reset drops everything. The client calls it when a fresh session replaces
// an old one, before the new snapshot is applied.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientUser = nil
	s.users = make(map[structs.Snowflake]*entry[structs.User])
	s.guilds = make(map[structs.Snowflake]*entry[structs.Guild])
	s.channels = make(map[structs.Snowflake]*entry[structs.Channel])
	s.members = make(map[MemberKey]*entry[structs.Member])
	s.relationships = make(map[structs.Snowflake]*entry[structs.Relationship])
	s.messages = make(map[structs.Snowflake]*entry[structs.Message])
	s.messageOrder = nil
}

func (s *State) SetClientUser(u structs.ClientUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientUser = &u
	upsert(s.users, u.ID, u.User, true, mergeUser)
}

func (s *State) UpsertUser(u structs.User, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	upsert(s.users, u.ID, u, full, mergeUser)
}

func (s *State) UpsertGuild(g structs.Guild, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertGuild(g, full)
}

// upsertGuild peels nested members and channels into their own stores; the
// stored guild record keeps roles only.
func (s *State) upsertGuild(g structs.Guild, full bool) {
	for _, m := range g.Members {
		s.upsertMember(m, true)
	}
	for _, c := range g.Channels {
		s.upsertChannel(c, true)
	}
	g.Members = nil
	g.Channels = nil
	if full && g.Roles == nil {
		// Payloads carry roles only on request; an absent list is not an
		// empty one, so a full replace keeps the roles already held.
		if e, ok := s.guilds[g.ID]; ok {
			g.Roles = e.value.Roles
		}
	}
	upsert(s.guilds, g.ID, g, full, mergeGuild)
}

func (s *State) UpsertChannel(c structs.Channel, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertChannel(c, full)
}

func (s *State) upsertChannel(c structs.Channel, full bool) {
	upsert(s.channels, c.ID, c, full, mergeChannel)
}

func (s *State) UpsertMember(m structs.Member, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertMember(m, full)
}

// upsertMember also feeds the inlined user fields into the user store so id
// lookups resolve users seen only through guilds.
func (s *State) upsertMember(m structs.Member, full bool) {
	upsert(s.members, MemberKey{GuildID: m.GuildID, UserID: m.ID}, m, full, mergeMember)
	upsert(s.users, m.ID, m.User, full, mergeUser)
}

func (s *State) UpsertMessage(m structs.Message, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Author != nil {
		// Author objects are references carried inside the payload.
		upsert(s.users, m.Author.ID, m.Author.User, false, mergeUser)
	}
	if _, exists := s.messages[m.ID]; !exists {
		if s.maxMessages > 0 && len(s.messageOrder) >= s.maxMessages {
			oldest := s.messageOrder[0]
			s.messageOrder = s.messageOrder[1:]
			delete(s.messages, oldest)
		}
		s.messageOrder = append(s.messageOrder, m.ID)
	}
	upsert(s.messages, m.ID, m, full, mergeMessage)
}

// UpsertRole rewrites one role on its guild's record. Unknown guilds are
// ignored; roles only live embedded in guilds.
func (s *State) UpsertRole(r structs.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.guilds[r.GuildID]
	if !ok {
		return
	}
	// Readers hold copied slice headers, so mutate a clone.
	roles := slices.Clone(e.value.Roles)
	if i := slices.IndexFunc(roles, func(cur structs.Role) bool { return cur.ID == r.ID }); i >= 0 {
		roles[i] = r
	} else {
		roles = append(roles, r)
	}
	e.value.Roles = roles
}

func (s *State) UpsertRelationship(r structs.Relationship, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertRelationship(r, full)
}

func (s *State) upsertRelationship(r structs.Relationship, full bool) {
	upsert(s.relationships, r.UserID(), r, full, mergeRelationship)
	upsert(s.users, r.User.ID, r.User, full, mergeUser)
}

func (s *State) RemoveUser(id structs.Snowflake) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// RemoveGuild evicts the guild and cascades to its channels and members.
func (s *State) RemoveGuild(id structs.Snowflake) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guilds, id)
	for cid, c := range s.channels {
		if c.value.GuildID == id {
			delete(s.channels, cid)
		}
	}
	for key := range s.members {
		if key.GuildID == id {
			delete(s.members, key)
		}
	}
}

func (s *State) RemoveChannel(id structs.Snowflake) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, id)
}

func (s *State) RemoveMember(guildID, userID structs.Snowflake) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, MemberKey{GuildID: guildID, UserID: userID})
}

func (s *State) RemoveMessage(id structs.Snowflake) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return
	}
	delete(s.messages, id)
	if i := slices.Index(s.messageOrder, id); i >= 0 {
		s.messageOrder = slices.Delete(s.messageOrder, i, i+1)
	}
}

func (s *State) RemoveRelationship(userID structs.Snowflake) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.relationships, userID)
}

// ClientUser returns the authenticated user from the last ready payload.
func (s *State) ClientUser() (structs.ClientUser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.clientUser == nil {
		return structs.ClientUser{}, false
	}
	return *s.clientUser, true
}

func (s *State) User(id structs.Snowflake) (structs.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.users, id)
}

func (s *State) FullUser(id structs.Snowflake) (structs.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookupFull(s.users, id)
}

func (s *State) Guild(id structs.Snowflake) (structs.Guild, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.guilds, id)
}

func (s *State) FullGuild(id structs.Snowflake) (structs.Guild, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookupFull(s.guilds, id)
}

func (s *State) Channel(id structs.Snowflake) (structs.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.channels, id)
}

func (s *State) FullChannel(id structs.Snowflake) (structs.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookupFull(s.channels, id)
}

func (s *State) Member(guildID, userID structs.Snowflake) (structs.Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.members, MemberKey{GuildID: guildID, UserID: userID})
}

func (s *State) FullMember(guildID, userID structs.Snowflake) (structs.Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookupFull(s.members, MemberKey{GuildID: guildID, UserID: userID})
}

func (s *State) Message(id structs.Snowflake) (structs.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.messages, id)
}

func (s *State) Relationship(userID structs.Snowflake) (structs.Relationship, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.relationships, userID)
}

func (s *State) Guilds() []structs.Guild {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]structs.Guild, 0, len(s.guilds))
	for _, e := range s.guilds {
		out = append(out, e.value)
	}
	sortByID(out, func(g structs.Guild) structs.Snowflake { return g.ID })
	return out
}

func (s *State) GuildChannels(guildID structs.Snowflake) []structs.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []structs.Channel
	for _, e := range s.channels {
		if e.value.GuildID == guildID {
			out = append(out, e.value)
		}
	}
	sortByID(out, func(c structs.Channel) structs.Snowflake { return c.ID })
	return out
}

func (s *State) GuildMembers(guildID structs.Snowflake) []structs.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []structs.Member
	for key, e := range s.members {
		if key.GuildID == guildID {
			out = append(out, e.value)
		}
	}
	sortByID(out, func(m structs.Member) structs.Snowflake { return m.ID })
	return out
}

func (s *State) DMChannels() []structs.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []structs.Channel
	for _, e := range s.channels {
		if e.value.Type.IsDM() {
			out = append(out, e.value)
		}
	}
	sortByID(out, func(c structs.Channel) structs.Snowflake { return c.ID })
	return out
}

func (s *State) Relationships() []structs.Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]structs.Relationship, 0, len(s.relationships))
	for _, e := range s.relationships {
		out = append(out, e.value)
	}
	sortByID(out, func(r structs.Relationship) structs.Snowflake { return r.UserID() })
	return out
}

func sortByID[T any](items []T, id func(T) structs.Snowflake) {
	slices.SortFunc(items, func(a, b T) int {
		return cmp.Compare(id(a), id(b))
	})
}
