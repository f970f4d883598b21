package middleware

import (
	"fmt"
	"log"
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/sentinela-saude/sentinela/internal/api"
	"github.com/sentinela-saude/sentinela/internal/database"
)

// Resources and actions checked by the authorizer
const (
	ResourceIncidents = "incidents"
	ResourceDeadlines = "deadlines"
	ResourceOverrides = "overrides"
	ResourceDirectory = "directory"
	ResourceJobs      = "jobs"

	ActionRead  = "read"
	ActionWrite = "write"
)

// ADMIN inherits everything ALTA_GESTAO may do, which in turn inherits
// GESTOR_SETOR.
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && (r.act == p.act || p.act == "*")
`

var defaultPolicies = [][]string{
	{string(database.RoleSectorManager), ResourceIncidents, "*"},
	{string(database.RoleSectorManager), ResourceDirectory, ActionRead},
	{string(database.RoleLeadership), ResourceDeadlines, "*"},
	{string(database.RoleAdmin), ResourceDirectory, ActionWrite},
	{string(database.RoleAdmin), ResourceOverrides, "*"},
	{string(database.RoleAdmin), ResourceJobs, "*"},
}

var roleHierarchy = [][]string{
	{string(database.RoleLeadership), string(database.RoleSectorManager)},
	{string(database.RoleAdmin), string(database.RoleLeadership)},
}

// Authorizer decides whether a role may perform an action on a resource
type Authorizer struct {
	enforcer *casbin.Enforcer
}

// NewAuthorizer builds the role policy in memory
func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}
	// Load role permissions
	for _, p := range defaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("failed to add policy %v: %w", p, err)
		}
	}
	// Higher roles inherit everything below them
	for _, g := range roleHierarchy {
		if _, err := e.AddGroupingPolicy(g[0], g[1]); err != nil {
			return nil, fmt.Errorf("failed to add role %v: %w", g, err)
		}
	}
	return &Authorizer{enforcer: e}, nil
}

// Allowed reports whether role may perform action on resource
func (a *Authorizer) Allowed(role database.ManagerRole, resource, action string) bool {
	ok, err := a.enforcer.Enforce(string(role), resource, action)
	if err != nil {
		log.Printf("Authorizer: enforce %s %s %s: %v", role, resource, action, err)
		return false
	}
	return ok
}

// Require wraps a handler so only authenticated roles allowed on
// resource/action reach it.
func (a *Authorizer) Require(resource, action string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			// Wrap runs first, so missing claims mean an unauthenticated request
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				api.RespondError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !a.Allowed(claims.Role, resource, action) {
				log.Printf("Authorizer: denied %s %s user=%s role=%s need=%s:%s",
					r.Method, r.URL.Path, claims.Username, claims.Role, resource, action)
				api.RespondErrorWithCode(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			}
			next(w, r)
		}
	}
}
