package corebank

import (
	"context"
	"strings"
)

// Authorizer answers admin checks for the identity provider in front of the bank.
type Authorizer interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// StaticAuthorizer treats a fixed set of user ids as administrators.
type StaticAuthorizer struct {
	admins map[string]struct{}
}

func NewStaticAuthorizer(adminIDs []string) *StaticAuthorizer {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			admins[id] = struct{}{}
		}
	}
	return &StaticAuthorizer{admins: admins}
}

func (s *StaticAuthorizer) IsAdmin(_ context.Context, userID string) (bool, error) {
	_, ok := s.admins[userID]
	return ok, nil
}
