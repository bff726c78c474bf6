package identity

import (
	"fmt"
	"strings"
)

// Role distinguishes the two sides of a marketplace conversation.
type Role string

const (
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
)

const sellerPrefix = "seller_"
const userPrefix = "user_"

// Identity is a role-tagged participant reference. Wire frames encode it
// with a string prefix convention ("seller_<id>", optionally "user_<id>");
// everything past the socket boundary works with this tagged form instead
// of re-parsing prefixes.
type Identity struct {
	Role Role
	ID   string
}

// Parse decodes a raw registration string. A bare id without prefix is a
// buyer, matching what the storefront sends.
func Parse(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, fmt.Errorf("empty identity")
	}

	switch {
	case strings.HasPrefix(raw, sellerPrefix):
		id := strings.TrimPrefix(raw, sellerPrefix)
		if id == "" {
			return Identity{}, fmt.Errorf("empty seller id in %q", raw)
		}
		return Identity{Role: RoleSeller, ID: id}, nil
	case strings.HasPrefix(raw, userPrefix):
		id := strings.TrimPrefix(raw, userPrefix)
		if id == "" {
			return Identity{}, fmt.Errorf("empty user id in %q", raw)
		}
		return Identity{Role: RoleUser, ID: id}, nil
	default:
		return Identity{Role: RoleUser, ID: raw}, nil
	}
}

// Counterparty resolves a toUserId field against the sender's role. The
// receiver of a chat frame is always the other side of the conversation,
// and clients send the id bare; a prefixed form is tolerated by stripping
// the role tag.
func Counterparty(sender Role, raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, sellerPrefix):
		raw = strings.TrimPrefix(raw, sellerPrefix)
	case strings.HasPrefix(raw, userPrefix):
		raw = strings.TrimPrefix(raw, userPrefix)
	}
	if raw == "" {
		return Identity{}, fmt.Errorf("empty recipient id")
	}
	return Identity{Role: Opposite(sender), ID: raw}, nil
}

// ParseRole validates a senderType wire value.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleUser:
		return RoleUser, nil
	case RoleSeller:
		return RoleSeller, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// Opposite returns the other side of a conversation.
func Opposite(r Role) Role {
	if r == RoleSeller {
		return RoleUser
	}
	return RoleSeller
}

// String renders the wire form ("user_<id>" / "seller_<id>").
func (i Identity) String() string {
	return fmt.Sprintf("%s_%s", i.Role, i.ID)
}

// PresenceKey is the role-scoped key used by the presence store.
func (i Identity) PresenceKey() string {
	return fmt.Sprintf("online:%s:%s", i.Role, i.ID)
}
