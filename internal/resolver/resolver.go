// Package resolver maps a notified sector to the managers accountable for it.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sentinela-saude/sentinela/internal/database"
)

// ErrNoManagerForSector matches any NoManagerError via errors.Is
var ErrNoManagerForSector = errors.New("no manager for sector")

// NoManagerError reports that nobody in the tenant is accountable for a sector.
// Callers treat it as a warning: the incident stays stored, only dispatch is skipped.
type NoManagerError struct {
	TenantID uint
	Sector   string
}

func (e *NoManagerError) Error() string {
	return fmt.Sprintf("no manager for sector %q in tenant %d", e.Sector, e.TenantID)
}

// Is lets errors.Is(err, ErrNoManagerForSector) match
func (e *NoManagerError) Is(target error) bool {
	return target == ErrNoManagerForSector
}

// Contact is a dispatch recipient
type Contact struct {
	ManagerID uint
	Name      string
	Email     string
	Role      database.ManagerRole
}

// ManagerSource lists the managers of one tenant
type ManagerSource interface {
	ListManagers(ctx context.Context, tenantID uint) ([]database.Manager, error)
}

// Resolver resolves sector names to manager contacts
type Resolver struct {
	source ManagerSource
}

// New creates a resolver reading managers from source
func New(source ManagerSource) *Resolver {
	return &Resolver{source: source}
}

// ResolveManagers returns every manager of the tenant whose sector set
// contains sector exactly (case-sensitive). Contacts are unique by e-mail,
// in manager order. Zero matches yield a *NoManagerError.
func (r *Resolver) ResolveManagers(ctx context.Context, tenantID uint, sector string) ([]Contact, error) {
	managers, err := r.source.ListManagers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list managers: %w", err)
	}

	var contacts []Contact
	seen := make(map[string]struct{})
	for _, m := range managers {
		// Never cross tenants, whatever the source returned
		if m.TenantID != tenantID {
			continue
		}
		if !m.Sectors.Contains(sector) {
			continue
		}
		email := strings.TrimSpace(m.Email)
		if email == "" {
			continue
		}
		// De-duplicate by address, case-insensitively
		key := strings.ToLower(email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		contacts = append(contacts, Contact{
			ManagerID: m.ID,
			Name:      m.Name,
			Email:     email,
			Role:      m.Role,
		})
	}

	if len(contacts) == 0 {
		return nil, &NoManagerError{TenantID: tenantID, Sector: sector}
	}
	return contacts, nil
}

// Emails returns the addresses of contacts
func Emails(contacts []Contact) []string {
	out := make([]string, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.Email)
	}
	return out
}
