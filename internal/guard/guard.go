// internal/guard/guard.go

// Package guard decides whether a request may reach protected content.
// The decision table is pure and evaluated fresh on every request; a
// cached decision from a previous identity is a correctness violation.
package guard

import (
	"dealdesk/internal/models"
)

// Outcome is the result of one guard evaluation.
type Outcome string

const (
	// OutcomeLoading renders a neutral placeholder and nothing else.
	OutcomeLoading Outcome = "loading"
	// OutcomeSignIn redirects to sign-in, preserving the requested location.
	OutcomeSignIn Outcome = "signin"
	// OutcomeHome redirects an identity lacking the required role home.
	OutcomeHome Outcome = "home"
	// OutcomeRender admits the request.
	OutcomeRender Outcome = "render"
)

// Evaluate applies the decision table top to bottom:
// loading wins over everything, then missing identity, then missing role.
// An empty requiredRoles list makes the route identity-gated only.
func Evaluate(loading bool, identity *models.Identity, profile *models.Profile, requiredRoles ...models.Role) Outcome {
	if loading {
		return OutcomeLoading
	}
	if identity == nil {
		return OutcomeSignIn
	}
	if len(requiredRoles) > 0 {
		if profile == nil {
			return OutcomeHome
		}
		if !roleAllowed(profile.Role, requiredRoles) {
			return OutcomeHome
		}
	}
	return OutcomeRender
}

func roleAllowed(role models.Role, allowed []models.Role) bool {
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}
