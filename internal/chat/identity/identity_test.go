package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Identity
		wantErr bool
	}{
		{name: "bare id is a buyer", raw: "42", want: Identity{Role: RoleUser, ID: "42"}},
		{name: "seller prefix", raw: "seller_7", want: Identity{Role: RoleSeller, ID: "7"}},
		{name: "explicit user prefix", raw: "user_42", want: Identity{Role: RoleUser, ID: "42"}},
		{name: "whitespace trimmed", raw: "  seller_7\n", want: Identity{Role: RoleSeller, ID: "7"}},
		{name: "empty", raw: "", wantErr: true},
		{name: "blank", raw: "   ", wantErr: true},
		{name: "prefix without id", raw: "seller_", wantErr: true},
		{name: "user prefix without id", raw: "user_", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCounterparty(t *testing.T) {
	tests := []struct {
		name    string
		sender  Role
		raw     string
		want    Identity
		wantErr bool
	}{
		{name: "buyer to seller, bare id", sender: RoleUser, raw: "s1", want: Identity{Role: RoleSeller, ID: "s1"}},
		{name: "seller to buyer, bare id", sender: RoleSeller, raw: "42", want: Identity{Role: RoleUser, ID: "42"}},
		{name: "seller prefix tolerated", sender: RoleUser, raw: "seller_s1", want: Identity{Role: RoleSeller, ID: "s1"}},
		{name: "user prefix tolerated", sender: RoleSeller, raw: "user_42", want: Identity{Role: RoleUser, ID: "42"}},
		{name: "only one prefix is stripped", sender: RoleUser, raw: "user_seller_9", want: Identity{Role: RoleSeller, ID: "seller_9"}},
		{name: "empty", sender: RoleUser, raw: "", wantErr: true},
		{name: "prefix without id", sender: RoleUser, raw: "seller_", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Counterparty(tt.sender, tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("seller")
	assert.NoError(t, err)
	assert.Equal(t, RoleSeller, role)

	_, err = ParseRole("admin")
	assert.Error(t, err)
}

func TestOpposite(t *testing.T) {
	assert.Equal(t, RoleSeller, Opposite(RoleUser))
	assert.Equal(t, RoleUser, Opposite(RoleSeller))
}

func TestWireForms(t *testing.T) {
	id := Identity{Role: RoleSeller, ID: "7"}
	assert.Equal(t, "seller_7", id.String())
	assert.Equal(t, "online:seller:7", id.PresenceKey())

	// The wire form must round-trip through Parse.
	parsed, err := Parse(id.String())
	assert.NoError(t, err)
	assert.Equal(t, id, parsed)
}
