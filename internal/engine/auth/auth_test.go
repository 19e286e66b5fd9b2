package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doclife/internal/domain"
)

type directory map[string]domain.User

func (d directory) GetUser(_ context.Context, id string) (domain.User, error) {
	u, ok := d[id]
	if !ok {
		return domain.User{}, domain.Errorf(domain.ErrKindNotFound, "user %s not found", id)
	}
	return u, nil
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	svc := Service{Users: directory{
		"pm-1": {ID: "pm-1", Email: "pm@example.org", Groups: []string{"Partnership Manager", "UNICEF User"}},
	}}

	got, err := svc.Resolve(ctx, domain.User{ID: " pm-1 "})
	require.NoError(t, err)
	assert.Equal(t, "pm-1", got.ID)
	assert.Equal(t, "pm@example.org", got.Email)
	assert.Equal(t, []string{"Partnership Manager", "UNICEF User"}, got.Groups)

	got, err = svc.Resolve(ctx, domain.User{ID: "pm-1", Groups: []string{"Partner", " ", "Partner"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Partner"}, got.Groups, "token groups win")

	_, err = svc.Resolve(ctx, domain.User{ID: "ghost"})
	assert.Equal(t, domain.ErrKindForbidden, domain.KindOf(err))

	svc.AllowUnknown = true
	got, err = svc.Resolve(ctx, domain.User{ID: "ghost"})
	require.NoError(t, err)
	assert.Empty(t, got.Groups)

	_, err = svc.Resolve(ctx, domain.User{})
	assert.Equal(t, domain.ErrKindForbidden, domain.KindOf(err))
}

func TestParseGroups(t *testing.T) {
	assert.Equal(t, []string{"PME", "UNICEF User"}, ParseGroups("UNICEF User, PME,,PME"))
	assert.Empty(t, ParseGroups(""))
}
