package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameJSON(t *testing.T) {
	cases := []struct {
		a, b string
		same bool
	}{
		{"null", "[]", true},
		{"[]", "{}", true},
		{"", "null", true},
		{`""`, "null", true},
		{`{"a":1,"b":2}`, `{"b":2,"a":1}`, true},
		{"[]", `["x"]`, false},
		{"null", "0", false},
		{"false", "null", false},
		{`"a"`, `"b"`, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.same, SameJSON(json.RawMessage(c.a), json.RawMessage(c.b)), "%s vs %s", c.a, c.b)
	}
}

func TestChangesIgnoresEmptyCollections(t *testing.T) {
	before := &Agreement{Partner: "P1", AgreementType: AgreementPCA}
	after := &Agreement{Partner: "P1", AgreementType: AgreementPCA, AuthorizedOfficers: []string{}, Amendments: []Amendment{}}
	diff, err := Changes(before, after)
	require.NoError(t, err)
	assert.Empty(t, diff)

	after.AuthorizedOfficers = []string{"ao-1"}
	diff, err = Changes(before, after)
	require.NoError(t, err)
	assert.Equal(t, []string{"authorized_officers"}, diff.Fields())
	assert.JSONEq(t, `null`, string(diff["authorized_officers"].Before))
}

func TestApplyPatchReportsBadValues(t *testing.T) {
	a := &Agreement{Partner: "P1", AgreementType: AgreementPCA}
	_, fieldErrs, err := ApplyPatch(a, map[string]json.RawMessage{"authorized_officers": json.RawMessage(`"ao-1"`)})
	require.NoError(t, err)
	require.Contains(t, fieldErrs, "authorized_officers")
	assert.Contains(t, fieldErrs["authorized_officers"][0], "invalid value")
}
