package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"huddle/internal/pkg/randx"
)

// DemoServerID is the id of the server seeded by SeedDemo.
const DemoServerID = "demo"

// MemoryStore is a process-local Store used in development and tests.
type MemoryStore struct {
	mu sync.RWMutex

	users       map[string]*User // by id
	usersByName map[string]string
	servers     map[string]*Server
	channels    map[string]*Channel
	order       map[string][]string // server id -> channel ids in creation order
	invites     map[string]*Invite
	messages    map[string][]Message

	now func() time.Time
}

// compile-time check to ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*User),
		usersByName: make(map[string]string),
		servers:     make(map[string]*Server),
		channels:    make(map[string]*Channel),
		order:       make(map[string][]string),
		invites:     make(map[string]*Invite),
		messages:    make(map[string][]Message),
		now:         time.Now,
	}
}

// SeedDemo creates the "demo" server owned by "admin" with the general, announcements
// and voice1 channels.
func (s *MemoryStore) SeedDemo() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.servers[DemoServerID] = &Server{
		ID:        DemoServerID,
		Name:      "Demo Server",
		Owner:     "admin",
		Admins:    []string{"admin"},
		Members:   []string{"admin"},
		CreatedAt: now,
	}
	s.addChannelLocked(&Channel{ID: "general", ServerID: DemoServerID, Name: "General Chat", Type: ChannelText, Settings: DefaultSettings(ChannelText), CreatedAt: now})
	s.addChannelLocked(&Channel{ID: "announcements", ServerID: DemoServerID, Name: "Announcements", Type: ChannelAnnouncement, Settings: DefaultSettings(ChannelAnnouncement), CreatedAt: now})
	s.addChannelLocked(&Channel{ID: "voice1", ServerID: DemoServerID, Name: "General Voice", Type: ChannelVoice, Settings: DefaultSettings(ChannelVoice), CreatedAt: now})
}

func (s *MemoryStore) addChannelLocked(ch *Channel) {
	s.channels[ch.ID] = ch
	s.order[ch.ServerID] = append(s.order[ch.ServerID], ch.ID)
}

func (s *MemoryStore) newIDLocked(taken func(string) bool) (string, error) {
	for range 5 {
		id, err := randx.ResourceID()
		if err != nil {
			return "", err
		}
		if !taken(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique id")
}

func cloneServer(s *Server) Server {
	out := *s
	out.Admins = slices.Clone(s.Admins)
	out.Members = slices.Clone(s.Members)
	return out
}

// --- Users ---

func (s *MemoryStore) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	if _, exists := s.usersByName[key]; exists {
		return User{}, ErrConflict
	}

	u := &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    s.now(),
	}
	s.users[u.ID] = u
	s.usersByName[key] = u.ID
	return *u, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByName[strings.ToLower(username)]
	if !ok {
		return User{}, ErrNotFound
	}
	return *s.users[id], nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (s *MemoryStore) UpdateAvatar(ctx context.Context, userID, key string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	u.AvatarKey = key
	return *u, nil
}

func (s *MemoryStore) TouchLastLogin(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = s.now()
	return nil
}

// --- Servers ---

func (s *MemoryStore) CreateServer(ctx context.Context, name, owner string) (Server, []Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.newIDLocked(func(id string) bool { _, ok := s.servers[id]; return ok })
	if err != nil {
		return Server{}, nil, err
	}

	now := s.now()
	srv := &Server{
		ID:        id,
		Name:      name,
		Owner:     owner,
		Admins:    []string{owner},
		Members:   []string{owner},
		CreatedAt: now,
	}
	s.servers[id] = srv

	defaults := []struct {
		name string
		typ  ChannelType
	}{
		{"general", ChannelText},
		{"General Voice", ChannelVoice},
	}

	channels := make([]Channel, 0, len(defaults))
	for _, d := range defaults {
		chID, err := s.newIDLocked(func(id string) bool { _, ok := s.channels[id]; return ok })
		if err != nil {
			return Server{}, nil, err
		}
		ch := &Channel{ID: chID, ServerID: id, Name: d.name, Type: d.typ, Settings: DefaultSettings(d.typ), CreatedAt: now}
		s.addChannelLocked(ch)
		channels = append(channels, *ch)
	}

	return cloneServer(srv), channels, nil
}

func (s *MemoryStore) GetServer(ctx context.Context, serverID string) (Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	srv, ok := s.servers[serverID]
	if !ok {
		return Server{}, ErrNotFound
	}
	return cloneServer(srv), nil
}

func (s *MemoryStore) ListServersForUser(ctx context.Context, username string) ([]Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Server, 0)
	for _, srv := range s.servers {
		if srv.IsMember(username) {
			out = append(out, cloneServer(srv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) || (out[i].CreatedAt.Equal(out[j].CreatedAt) && out[i].ID < out[j].ID) })
	return out, nil
}

func (s *MemoryStore) EnsureMember(ctx context.Context, serverID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[serverID]
	if !ok {
		return ErrNotFound
	}
	if !srv.IsMember(username) {
		srv.Members = append(srv.Members, username)
	}
	return nil
}

func (s *MemoryStore) SetAdmin(ctx context.Context, serverID, username string, admin bool) (Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[serverID]
	if !ok {
		return Server{}, ErrNotFound
	}

	idx := slices.Index(srv.Admins, username)
	switch {
	case admin && idx == -1:
		srv.Admins = append(srv.Admins, username)
	case !admin && idx != -1 && username != srv.Owner:
		srv.Admins = slices.Delete(srv.Admins, idx, idx+1)
	}
	return cloneServer(srv), nil
}

func (s *MemoryStore) IsOwnerOrAdmin(ctx context.Context, serverID, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	srv, ok := s.servers[serverID]
	if !ok {
		return false, ErrNotFound
	}
	return srv.IsOwnerOrAdmin(username), nil
}

// --- Channels ---

func (s *MemoryStore) CreateChannel(ctx context.Context, serverID, name string, typ ChannelType, settings ChannelSettings) (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[serverID]; !ok {
		return Channel{}, ErrNotFound
	}

	id, err := s.newIDLocked(func(id string) bool { _, ok := s.channels[id]; return ok })
	if err != nil {
		return Channel{}, err
	}

	ch := &Channel{ID: id, ServerID: serverID, Name: name, Type: typ, Settings: settings, CreatedAt: s.now()}
	s.addChannelLocked(ch)
	return *ch, nil
}

func (s *MemoryStore) GetChannel(ctx context.Context, channelID string) (Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return Channel{}, ErrNotFound
	}
	return *ch, nil
}

func (s *MemoryStore) ListChannels(ctx context.Context, serverID string) ([]Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.servers[serverID]; !ok {
		return nil, ErrNotFound
	}

	ids := s.order[serverID]
	out := make([]Channel, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.channels[id])
	}
	return out, nil
}

func (s *MemoryStore) UpdateChannelSettings(ctx context.Context, channelID string, patch SettingsPatch) (Channel, error) {
	if err := patch.Validate(); err != nil {
		return Channel{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return Channel{}, ErrNotFound
	}
	ch.Settings = ch.Settings.Apply(patch)
	return *ch, nil
}

func (s *MemoryStore) DeleteChannel(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return ErrNotFound
	}
	delete(s.channels, channelID)
	delete(s.messages, channelID)
	s.order[ch.ServerID] = slices.DeleteFunc(s.order[ch.ServerID], func(id string) bool { return id == channelID })
	return nil
}

// --- Invites ---

func (s *MemoryStore) CreateInvite(ctx context.Context, serverID, createdBy string, maxUses int) (Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[serverID]; !ok {
		return Invite{}, ErrNotFound
	}
	if maxUses <= 0 {
		maxUses = DefaultInviteMaxUses
	}

	var code string
	for {
		c, err := randx.InviteCode()
		if err != nil {
			return Invite{}, err
		}
		if _, taken := s.invites[c]; !taken {
			code = c
			break
		}
	}

	inv := &Invite{Code: code, ServerID: serverID, CreatedBy: createdBy, MaxUses: maxUses, CreatedAt: s.now()}
	s.invites[code] = inv
	return *inv, nil
}

func (s *MemoryStore) RedeemInvite(ctx context.Context, code, username string) (Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[code]
	if !ok {
		return Server{}, ErrNotFound
	}
	srv, ok := s.servers[inv.ServerID]
	if !ok {
		return Server{}, ErrNotFound
	}
	if inv.Uses >= inv.MaxUses {
		return Server{}, ErrInviteExhausted
	}
	if srv.IsMember(username) {
		return Server{}, ErrAlreadyMember
	}

	srv.Members = append(srv.Members, username)
	inv.Uses++
	return cloneServer(srv), nil
}

// --- Messages ---

func (s *MemoryStore) PersistMessage(ctx context.Context, channelID, username, text string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return Message{}, ErrNotFound
	}
	srv := s.servers[ch.ServerID]

	msg := Message{
		ID:        randx.MessageID(),
		ChannelID: channelID,
		Username:  username,
		Text:      text,
		IsAdmin:   slices.Contains(srv.Admins, username),
		IsOwner:   srv.Owner == username,
		CreatedAt: s.now(),
	}
	s.messages[channelID] = append(s.messages[channelID], msg)
	return msg, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.channels[channelID]; !ok {
		return nil, ErrNotFound
	}

	all := s.messages[channelID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Message, len(all))
	copy(out, all)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
