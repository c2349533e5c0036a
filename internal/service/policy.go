package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"campus_realtime/internal/domain"
)

// Policy supplies the authorization and recipient rules of one context kind.
type Policy interface {
	CanRead(ctx context.Context, cc domain.ChatContext, userID string) (bool, error)
	CanPost(ctx context.Context, cc domain.ChatContext, userID string) (bool, error)
	IsModerator(ctx context.Context, cc domain.ChatContext, userID string) (bool, error)
	// Recipients returns who should be notified about m, never including
	// its sender.
	Recipients(ctx context.Context, cc domain.ChatContext, m *domain.Message) ([]string, error)
}

// Policies maps context kinds onto policies.
type Policies struct {
	byKind map[domain.ContextKind]Policy
}

func NewPolicies() *Policies {
	return &Policies{byKind: make(map[domain.ContextKind]Policy)}
}

// DefaultPolicies wires the campus rules: the global room is open and
// notifies only @-mentions, subject and study rooms are member-only and
// notify every member, conversations are participant-only.
func DefaultPolicies(members domain.MembershipRepository, profiles domain.ProfileRepository) *Policies {
	p := NewPolicies()
	p.Set(domain.KindGlobal, &GlobalPolicy{profiles: profiles})
	p.Set(domain.KindSubject, &RoomPolicy{members: members, profiles: profiles, teacherModerates: true})
	p.Set(domain.KindStudyRoom, &RoomPolicy{members: members, profiles: profiles})
	p.Set(domain.KindConversation, &ConversationPolicy{members: members})
	return p
}

// Set installs the policy for kind, replacing any previous one.
func (p *Policies) Set(kind domain.ContextKind, policy Policy) {
	p.byKind[kind] = policy
}

// For returns the policy of cc's kind.
func (p *Policies) For(cc domain.ChatContext) (Policy, error) {
	policy, ok := p.byKind[cc.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no policy for context kind %q", domain.ErrInvalidArgument, cc.Kind)
	}
	return policy, nil
}

// GlobalPolicy governs the campus-wide room.
type GlobalPolicy struct {
	profiles domain.ProfileRepository
}

func (p *GlobalPolicy) CanRead(context.Context, domain.ChatContext, string) (bool, error) {
	return true, nil
}

func (p *GlobalPolicy) CanPost(context.Context, domain.ChatContext, string) (bool, error) {
	return true, nil
}

// IsModerator holds for teachers and admins.
func (p *GlobalPolicy) IsModerator(ctx context.Context, _ domain.ChatContext, userID string) (bool, error) {
	return hasProfileRole(ctx, p.profiles, userID, domain.RoleTeacher, domain.RoleAdmin)
}

// Recipients resolves @-mentions by display name.
func (p *GlobalPolicy) Recipients(ctx context.Context, _ domain.ChatContext, m *domain.Message) ([]string, error) {
	names := ParseMentions(m.Body)
	if len(names) == 0 {
		return nil, nil
	}
	found, err := p.profiles.FindByDisplayNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("resolve mentions: %w", err)
	}
	ids := make([]string, 0, len(found))
	for _, prof := range found {
		ids = append(ids, prof.UserID)
	}
	return withoutUser(ids, m.SenderID), nil
}

// RoomPolicy governs subject and study rooms.
type RoomPolicy struct {
	members          domain.MembershipRepository
	profiles         domain.ProfileRepository
	teacherModerates bool
}

func (p *RoomPolicy) CanRead(ctx context.Context, cc domain.ChatContext, userID string) (bool, error) {
	return isMember(ctx, p.members, cc.ID, userID)
}

func (p *RoomPolicy) CanPost(ctx context.Context, cc domain.ChatContext, userID string) (bool, error) {
	return isMember(ctx, p.members, cc.ID, userID)
}

func (p *RoomPolicy) IsModerator(ctx context.Context, cc domain.ChatContext, userID string) (bool, error) {
	m, err := p.members.Get(ctx, cc.ID, userID)
	if err != nil {
		return false, fmt.Errorf("get membership: %w", err)
	}
	if m == nil {
		return false, nil
	}
	if m.Role == domain.MemberRoleModerator {
		return true, nil
	}
	if p.teacherModerates {
		return hasProfileRole(ctx, p.profiles, userID, domain.RoleTeacher)
	}
	return false, nil
}

func (p *RoomPolicy) Recipients(ctx context.Context, cc domain.ChatContext, m *domain.Message) ([]string, error) {
	return memberIDs(ctx, p.members, cc.ID, m.SenderID)
}

// ConversationPolicy governs dm, store and match conversations. There are
// no moderators.
type ConversationPolicy struct {
	members domain.MembershipRepository
}

func (p *ConversationPolicy) CanRead(ctx context.Context, cc domain.ChatContext, userID string) (bool, error) {
	return isMember(ctx, p.members, cc.ID, userID)
}

func (p *ConversationPolicy) CanPost(ctx context.Context, cc domain.ChatContext, userID string) (bool, error) {
	return isMember(ctx, p.members, cc.ID, userID)
}

func (p *ConversationPolicy) IsModerator(context.Context, domain.ChatContext, string) (bool, error) {
	return false, nil
}

func (p *ConversationPolicy) Recipients(ctx context.Context, cc domain.ChatContext, m *domain.Message) ([]string, error) {
	return memberIDs(ctx, p.members, cc.ID, m.SenderID)
}

var mentionRe = regexp.MustCompile(`@(?:"([^"]+)"|([\p{L}\p{N}_.\-]+))`)

// ParseMentions extracts the display names mentioned in body, either as
// @name or @"Full Name". Duplicates are removed case-insensitively.
func ParseMentions(body string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, match := range mentionRe.FindAllStringSubmatch(body, -1) {
		name := match[1]
		if name == "" {
			name = strings.TrimRight(match[2], ".-")
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

func isMember(ctx context.Context, members domain.MembershipRepository, contextID, userID string) (bool, error) {
	m, err := members.Get(ctx, contextID, userID)
	if err != nil {
		return false, fmt.Errorf("get membership: %w", err)
	}
	return m != nil, nil
}

func memberIDs(ctx context.Context, members domain.MembershipRepository, contextID, exclude string) ([]string, error) {
	list, err := members.ListMembers(ctx, contextID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	ids := make([]string, 0, len(list))
	for _, m := range list {
		ids = append(ids, m.UserID)
	}
	return withoutUser(ids, exclude), nil
}

func hasProfileRole(ctx context.Context, profiles domain.ProfileRepository, userID string, roles ...string) (bool, error) {
	found, err := profiles.GetByIDs(ctx, []string{userID})
	if err != nil {
		return false, fmt.Errorf("get profile: %w", err)
	}
	prof := found[userID]
	if prof == nil {
		return false, nil
	}
	for _, r := range roles {
		if prof.Role == r {
			return true, nil
		}
	}
	return false, nil
}

func withoutUser(ids []string, userID string) []string {
	out := ids[:0]
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == userID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
