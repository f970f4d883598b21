package database

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// sqlitePrefix selects the embedded driver, e.g. "sqlite:/var/lib/sentinela.db" or "sqlite::memory:"
const sqlitePrefix = "sqlite:"

// Open builds a gorm handle for dsn without touching the global instance
func Open(dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	if strings.HasPrefix(dsn, sqlitePrefix) {
		db, err := gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix)), cfg)
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers; a single connection keeps conditional updates ordered
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
		return db, nil
	}

	return gorm.Open(postgres.Open(dsn), cfg)
}

// Connect establishes the global database connection
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	DB, err = Open(dsn, logLevel)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established")
	return nil
}

// Migrate creates or updates the schema on db
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Tenant{},
		&Sector{},
		&Manager{},
		&Incident{},
		&Evidence{},
		&AuditEntry{},
	)
}

// AutoMigrate runs database migrations on the global instance
func AutoMigrate() error {
	log.Println("Running database migrations...")

	if err := Migrate(DB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// InitializeDefaults creates the default tenant if it doesn't exist and returns it
func InitializeDefaults(tenantName, oversightName, oversightEmail string) (*Tenant, error) {
	log.Println("Initializing default database records...")
	return EnsureTenant(DB, tenantName, oversightName, oversightEmail)
}

// EnsureTenant returns the tenant named name, creating it with the given
// oversight contact when missing. An existing tenant without an oversight
// email inherits the configured one.
func EnsureTenant(db *gorm.DB, name, oversightName, oversightEmail string) (*Tenant, error) {
	var tenant Tenant
	err := db.Where("name = ?", name).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		tenant = Tenant{
			Name:           name,
			OversightName:  oversightName,
			OversightEmail: oversightEmail,
		}
		if err := db.Create(&tenant).Error; err != nil {
			return nil, fmt.Errorf("failed to create default tenant: %w", err)
		}
		log.Printf("Created default tenant %q (ID: %d)", tenant.Name, tenant.ID)
		return &tenant, nil
	}
	if err != nil {
		return nil, err
	}

	if tenant.OversightEmail == "" && oversightEmail != "" {
		if err := db.Model(&tenant).Updates(map[string]interface{}{
			"oversight_name":  oversightName,
			"oversight_email": oversightEmail,
		}).Error; err != nil {
			return nil, fmt.Errorf("failed to set oversight contact: %w", err)
		}
		log.Printf("Set oversight contact for tenant %q", tenant.Name)
	}
	return &tenant, nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
