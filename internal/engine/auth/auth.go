// Package auth resolves the acting user handed to the engine. Callers
// identify by id; group memberships come from the token or the user
// directory.
package auth

import (
	"context"
	"errors"
	"sort"
	"strings"

	"doclife/internal/domain"
)

// Directory is the read side of the user store.
type Directory interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// Service fills in users from a directory.
type Service struct {
	Users Directory
	// AllowUnknown lets ids with no directory entry act with no groups.
	AllowUnknown bool
}

// Resolve returns the user with groups. Groups supplied by the caller (for
// example from a signed token) win over the directory.
func (s Service) Resolve(ctx context.Context, u domain.User) (domain.User, error) {
	u.ID = strings.TrimSpace(u.ID)
	if u.ID == "" {
		return domain.User{}, domain.NewError(domain.ErrKindForbidden, "actor id required")
	}
	if len(u.Groups) > 0 || s.Users == nil {
		u.Groups = normalize(u.Groups)
		return u, nil
	}
	stored, err := s.Users.GetUser(ctx, u.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) && s.AllowUnknown {
			u.Groups = []string{}
			return u, nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.Errorf(domain.ErrKindForbidden, "unknown user %s", u.ID)
		}
		return domain.User{}, err
	}
	if u.Email == "" {
		u.Email = stored.Email
	}
	u.Groups = normalize(stored.Groups)
	return u, nil
}

// ParseGroups splits a comma separated group list.
func ParseGroups(raw string) []string {
	return normalize(strings.Split(raw, ","))
}

func normalize(groups []string) []string {
	set := map[string]bool{}
	for _, g := range groups {
		if g = strings.TrimSpace(g); g != "" {
			set[g] = true
		}
	}
	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}
