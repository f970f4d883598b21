package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// ErrDuplicate is returned when a unique tenant-scoped name or e-mail already exists
var ErrDuplicate = errors.New("record already exists")

// DirectoryRepository stores tenants, sectors and managers
type DirectoryRepository struct {
	db *gorm.DB
}

// NewDirectoryRepository creates a repository over db
func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// GetTenant loads a tenant by ID
func (r *DirectoryRepository) GetTenant(ctx context.Context, tenantID uint) (*Tenant, error) {
	var tenant Tenant
	err := r.db.WithContext(ctx).First(&tenant, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// GetTenantByName loads a tenant by its unique name
func (r *DirectoryRepository) GetTenantByName(ctx context.Context, name string) (*Tenant, error) {
	var tenant Tenant
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// ListSectors returns a tenant's sectors ordered by name
func (r *DirectoryRepository) ListSectors(ctx context.Context, tenantID uint) ([]Sector, error) {
	var sectors []Sector
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name asc").
		Find(&sectors).Error
	return sectors, err
}

// CreateSector inserts a sector, failing with ErrDuplicate when the name is taken
func (r *DirectoryRepository) CreateSector(ctx context.Context, sector *Sector) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Sector{}).
		Where("tenant_id = ? AND name = ?", sector.TenantID, sector.Name).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicate
	}
	if err := r.db.WithContext(ctx).Create(sector).Error; err != nil {
		return fmt.Errorf("failed to create sector: %w", err)
	}
	return nil
}

// DeleteSector removes a sector. Incidents keep the sector name they were filed with.
func (r *DirectoryRepository) DeleteSector(ctx context.Context, tenantID, id uint) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&Sector{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete sector: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// managerRow reads the sector column unparsed
type managerRow struct {
	ID        uint
	TenantID  uint
	Name      string
	Email     string
	Role      ManagerRole
	Sectors   sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListManagers returns a tenant's managers ordered by name. A manager whose
// stored sector set cannot be read is listed with no sectors, so one bad
// legacy row never hides the rest of the directory.
func (r *DirectoryRepository) ListManagers(ctx context.Context, tenantID uint) ([]Manager, error) {
	var rows []managerRow
	err := r.db.WithContext(ctx).Model(&Manager{}).
		Where("tenant_id = ?", tenantID).
		Order("name asc, id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	managers := make([]Manager, 0, len(rows))
	for _, row := range rows {
		sectors, err := ParseSectorSet(row.Sectors.String)
		if err != nil {
			log.Printf("Warning: manager %d of tenant %d has an unreadable sector set, treated as empty: %v", row.ID, row.TenantID, err)
			sectors = SectorSet{}
		}
		managers = append(managers, Manager{
			ID:        row.ID,
			TenantID:  row.TenantID,
			Name:      row.Name,
			Email:     row.Email,
			Role:      row.Role,
			Sectors:   sectors,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return managers, nil
}

// GetManager loads a manager inside a tenant
func (r *DirectoryRepository) GetManager(ctx context.Context, tenantID, id uint) (*Manager, error) {
	var manager Manager
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&manager).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &manager, nil
}

// CreateManager inserts a manager, failing with ErrDuplicate when the e-mail is taken
func (r *DirectoryRepository) CreateManager(ctx context.Context, manager *Manager) error {
	taken, err := r.emailTaken(ctx, manager.TenantID, manager.Email, 0)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicate
	}
	if err := r.db.WithContext(ctx).Create(manager).Error; err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	return nil
}

// UpdateManager saves name, e-mail, role and sectors of an existing manager
func (r *DirectoryRepository) UpdateManager(ctx context.Context, manager *Manager) error {
	taken, err := r.emailTaken(ctx, manager.TenantID, manager.Email, manager.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicate
	}
	result := r.db.WithContext(ctx).Model(&Manager{}).
		Where("tenant_id = ? AND id = ?", manager.TenantID, manager.ID).
		Updates(map[string]interface{}{
			"name":    manager.Name,
			"email":   manager.Email,
			"role":    manager.Role,
			"sectors": manager.Sectors,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update manager: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteManager removes a manager
func (r *DirectoryRepository) DeleteManager(ctx context.Context, tenantID, id uint) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&Manager{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete manager: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DirectoryRepository) emailTaken(ctx context.Context, tenantID uint, email string, exceptID uint) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&Manager{}).
		Where("tenant_id = ? AND email = ?", tenantID, email)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
