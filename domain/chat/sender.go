package chat

import (
	"strings"

	"support-chat/errors"

	"github.com/samber/lo"
)

// SenderKind is the role of a message author.
type SenderKind string

const (
	SenderCustomer      SenderKind = "customer"
	SenderOperator      SenderKind = "operator"
	SenderManager       SenderKind = "manager"
	SenderAdministrator SenderKind = "administrator"
	SenderSystem        SenderKind = "system"
)

var staffKinds = []SenderKind{SenderOperator, SenderManager, SenderAdministrator}

func (k SenderKind) Valid() bool {
	return k == SenderCustomer || k == SenderSystem || k.IsStaff()
}

func (k SenderKind) IsStaff() bool {
	return lo.Contains(staffKinds, k)
}

func ParseSenderKind(raw string) (SenderKind, error) {
	k := SenderKind(strings.ToLower(strings.TrimSpace(raw)))
	if !k.Valid() {
		return "", errors.ErrInvalidSender
	}
	return k, nil
}

// ReadableBy returns the sender kinds whose messages a reader of kind k
// acknowledges when opening a session: staff read customer messages,
// customers read staff messages. System messages are never counted.
func (k SenderKind) ReadableBy() []SenderKind {
	switch {
	case k == SenderCustomer:
		return append([]SenderKind(nil), staffKinds...)
	case k.IsStaff():
		return []SenderKind{SenderCustomer}
	default:
		return nil
	}
}
