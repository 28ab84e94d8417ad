package jwttoken

import (
	"erasure/pkg/platform/middleware/auth"
)

// Adapter exposes the JWT service through the middleware's TokenValidator
// interface so the transport layer does not depend on this package's claim
// type.
type Adapter struct {
	svc *Service
}

func NewAdapter(svc *Service) *Adapter {
	return &Adapter{svc: svc}
}

func (a *Adapter) ValidateToken(tokenString string) (*auth.Claims, error) {
	claims, err := a.svc.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &auth.Claims{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		Role:      claims.Role,
	}, nil
}
