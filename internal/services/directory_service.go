package services

import (
	"context"
	"strings"

	"github.com/sentinela-saude/sentinela/internal/audit"
	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/workflow"
)

// DirectoryService manages a tenant's sectors and managers
type DirectoryService struct {
	*core
}

// ManagerInput carries the editable manager fields
type ManagerInput struct {
	Name    string
	Email   string
	Role    database.ManagerRole
	Sectors database.SectorSet
}

// ListSectors returns the tenant's sectors ordered by name
func (s *DirectoryService) ListSectors(ctx context.Context, tenantID uint) ([]database.Sector, error) {
	return s.directory.ListSectors(ctx, tenantID)
}

// CreateSector adds a sector, unique by name within the tenant
func (s *DirectoryService) CreateSector(ctx context.Context, actor Actor, tenantID uint, name string) (*database.Sector, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, workflow.Errorf(workflow.CodeInvalidField, "sector name is required")
	}
	sector := &database.Sector{TenantID: tenantID, Name: name}
	if err := s.directory.CreateSector(ctx, sector); err != nil {
		return nil, repoError(err, "sector "+name)
	}
	s.audit.Record(ctx, actor.label(), audit.ActionSectorCreated, audit.SectorResource(sector.ID), map[string]interface{}{
		audit.DetailTenantID: tenantID,
		"name":               name,
	})
	return sector, nil
}

// DeleteSector removes a sector. Incidents keep the sector name they were filed under.
func (s *DirectoryService) DeleteSector(ctx context.Context, actor Actor, tenantID, id uint) error {
	if err := s.directory.DeleteSector(ctx, tenantID, id); err != nil {
		return repoError(err, "sector")
	}
	s.audit.Record(ctx, actor.label(), audit.ActionSectorDeleted, audit.SectorResource(id), map[string]interface{}{
		audit.DetailTenantID: tenantID,
	})
	return nil
}

// ListManagers returns the tenant's managers ordered by name
func (s *DirectoryService) ListManagers(ctx context.Context, tenantID uint) ([]database.Manager, error) {
	return s.directory.ListManagers(ctx, tenantID)
}

// GetManager returns one manager
func (s *DirectoryService) GetManager(ctx context.Context, tenantID, id uint) (*database.Manager, error) {
	m, err := s.directory.GetManager(ctx, tenantID, id)
	if err != nil {
		return nil, repoError(err, "manager")
	}
	return m, nil
}

// CreateManager adds a manager, unique by e-mail within the tenant
func (s *DirectoryService) CreateManager(ctx context.Context, actor Actor, tenantID uint, in ManagerInput) (*database.Manager, error) {
	m, err := buildManager(tenantID, in)
	if err != nil {
		return nil, err
	}
	if err := s.directory.CreateManager(ctx, m); err != nil {
		return nil, repoError(err, "manager "+m.Email)
	}
	s.audit.Record(ctx, actor.label(), audit.ActionManagerCreated, audit.ManagerResource(m.ID), map[string]interface{}{
		audit.DetailTenantID: tenantID,
		"email":              m.Email,
		"role":               string(m.Role),
		"sectors":            m.Sectors.String(),
	})
	return m, nil
}

// UpdateManager replaces the editable fields of a manager
func (s *DirectoryService) UpdateManager(ctx context.Context, actor Actor, tenantID, id uint, in ManagerInput) (*database.Manager, error) {
	m, err := buildManager(tenantID, in)
	if err != nil {
		return nil, err
	}
	m.ID = id
	if err := s.directory.UpdateManager(ctx, m); err != nil {
		return nil, repoError(err, "manager")
	}
	s.audit.Record(ctx, actor.label(), audit.ActionManagerUpdated, audit.ManagerResource(id), map[string]interface{}{
		audit.DetailTenantID: tenantID,
		"email":              m.Email,
		"role":               string(m.Role),
		"sectors":            m.Sectors.String(),
	})
	return s.GetManager(ctx, tenantID, id)
}

// DeleteManager removes a manager
func (s *DirectoryService) DeleteManager(ctx context.Context, actor Actor, tenantID, id uint) error {
	if err := s.directory.DeleteManager(ctx, tenantID, id); err != nil {
		return repoError(err, "manager")
	}
	s.audit.Record(ctx, actor.label(), audit.ActionManagerDeleted, audit.ManagerResource(id), map[string]interface{}{
		audit.DetailTenantID: tenantID,
	})
	return nil
}

func buildManager(tenantID uint, in ManagerInput) (*database.Manager, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" {
		return nil, workflow.Errorf(workflow.CodeInvalidField, "manager name is required")
	}
	if !strings.Contains(email, "@") {
		return nil, workflow.Errorf(workflow.CodeInvalidField, "invalid e-mail %q", in.Email)
	}
	role := in.Role
	if role == "" {
		role = database.RoleSectorManager
	}
	if !role.IsValid() {
		return nil, workflow.Errorf(workflow.CodeInvalidField, "unknown role %q", in.Role)
	}
	sectors, err := database.ParseSectorSet(in.Sectors)
	if err != nil {
		return nil, workflow.Wrap(workflow.CodeInvalidField, err, "invalid sectors")
	}
	return &database.Manager{
		TenantID: tenantID,
		Name:     name,
		Email:    email,
		Role:     role,
		Sectors:  sectors,
	}, nil
}
