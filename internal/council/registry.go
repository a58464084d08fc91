package council

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/pkg/config"
)

// Registry holds the configured council members in registration order.
// Deliberations take a Snapshot once at the start; administrative changes
// never affect a request already in flight.
type Registry struct {
	mu      sync.RWMutex
	members []domain.CouncilMember
}

// NewRegistry validates members and builds a registry.
func NewRegistry(members []domain.CouncilMember) (*Registry, error) {
	if err := validateMembers(members); err != nil {
		return nil, err
	}
	return &Registry{members: slices.Clone(members)}, nil
}

// RegistryFromConfig builds a registry from council.members.
func RegistryFromConfig(cfg config.CouncilConfig) (*Registry, error) {
	return NewRegistry(MembersFromConfig(cfg.Members))
}

// MembersFromConfig converts configured members to domain members.
func MembersFromConfig(cfgs []config.MemberConfig) []domain.CouncilMember {
	members := make([]domain.CouncilMember, 0, len(cfgs))
	for _, c := range cfgs {
		name := c.Name
		if name == "" {
			name = c.ID
		}
		members = append(members, domain.CouncilMember{
			ID:                c.ID,
			Name:              name,
			Role:              c.Role,
			ReasoningSelector: c.ReasoningSelector,
			Temperature:       c.Temperature,
			SystemPrompt:      c.SystemPrompt,
			Perspectives:      slices.Clone(c.Perspectives),
		})
	}
	return members
}

func validateMembers(members []domain.CouncilMember) error {
	if len(members) == 0 {
		return fmt.Errorf("council registry: no members")
	}
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if m.ID == "" {
			return fmt.Errorf("council registry: member with empty id")
		}
		if seen[m.ID] {
			return fmt.Errorf("council registry: duplicate member id %q", m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

// List returns the members in registration order.
func (r *Registry) List() []domain.CouncilMember {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.members)
}

// Get returns the member with the given id.
func (r *Registry) Get(id string) (domain.CouncilMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.members {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.CouncilMember{}, fmt.Errorf("%q: %w", id, domain.ErrMemberNotFound)
}

// Perspectives returns the distinct perspective tags, lowercased and sorted.
func (r *Registry) Perspectives() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return perspectivesOf(r.members)
}

func perspectivesOf(members []domain.CouncilMember) []string {
	var out []string
	for _, m := range members {
		for _, p := range m.Perspectives {
			p = strings.ToLower(p)
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	slices.Sort(out)
	return out
}

// Snapshot returns the members consulted for a request. An empty perspective
// selects every member. Otherwise universal members plus those tagged with
// the perspective are selected; a perspective that no member carries is an
// invalid request.
func (r *Registry) Snapshot(perspective string) ([]domain.CouncilMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	perspective = strings.TrimSpace(perspective)
	if perspective == "" {
		return slices.Clone(r.members), nil
	}

	var out []domain.CouncilMember
	tagged := false
	for _, m := range r.members {
		switch {
		case m.HasPerspective(perspective):
			tagged = true
			out = append(out, m)
		case m.Universal():
			out = append(out, m)
		}
	}
	if !tagged {
		return nil, domain.ErrInvalidRequest(fmt.Sprintf("unknown perspective %q; known: %s",
			perspective, strings.Join(perspectivesOf(r.members), ", "))).
			WithCode(domain.ErrorCodeUnknownPerspective).
			WithParam("madhab")
	}
	return out, nil
}

// Add registers a new member at the end of the order.
func (r *Registry) Add(m domain.CouncilMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := append(slices.Clone(r.members), m)
	if err := validateMembers(next); err != nil {
		return err
	}
	r.members = next
	return nil
}

// Remove drops a member. The last member cannot be removed.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := slices.IndexFunc(r.members, func(m domain.CouncilMember) bool { return m.ID == id })
	if idx < 0 {
		return fmt.Errorf("%q: %w", id, domain.ErrMemberNotFound)
	}
	if len(r.members) == 1 {
		return fmt.Errorf("council registry: cannot remove the last member")
	}
	r.members = slices.Delete(slices.Clone(r.members), idx, idx+1)
	return nil
}

// Replace swaps the whole member set, e.g. after a config reload.
func (r *Registry) Replace(members []domain.CouncilMember) error {
	if err := validateMembers(members); err != nil {
		return err
	}
	r.mu.Lock()
	r.members = slices.Clone(members)
	r.mu.Unlock()
	return nil
}

// Len returns the number of registered members.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
