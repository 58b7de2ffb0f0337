package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// RunRecord is the row describing the run that last wrote the inventory.
// Table name: runs
type RunRecord struct {
	ID        string    `gorm:"primaryKey;type:text;not null"`
	Project   string    `gorm:"type:text;not null"`
	GraphHash string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
}

func (RunRecord) TableName() string { return "runs" }

// ItemRecord persistence model of an InventoryItem.
// Table name: items
type ItemRecord struct {
	ID           string    `gorm:"primaryKey;type:text;not null"`
	APIGroup     string    `gorm:"type:text"`
	Version      string    `gorm:"type:text;not null"`
	Kind         string    `gorm:"type:text;not null"`
	Namespace    string    `gorm:"type:text"`
	Name         string    `gorm:"type:text;not null"`
	Provider     string    `gorm:"type:text"`
	DeclaredHash string    `gorm:"type:text"`
	ResolvedHash string    `gorm:"type:text"`
	Status       string    `gorm:"type:text;not null"`
	Live         string    `gorm:"type:text"` // JSON encoded object
	UpdatedAt    time.Time `gorm:"not null"`
}

func (ItemRecord) TableName() string { return "items" }

// ExportRecord persistence model of an ExportValue.
// Table name: exports
type ExportRecord struct {
	Name   string `gorm:"primaryKey;type:text;not null"`
	Value  string `gorm:"type:text"` // JSON encoded value
	Secret bool   `gorm:"not null"`
}

func (ExportRecord) TableName() string { return "exports" }

// SQLStore keeps the inventory in a sqlite database
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLStore opens a sqlite database and migrates its schema
func OpenSQLStore(dsn string) (*SQLStore, error) {
	if dsn == "" {
		dsn = "./clustergraph.db"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := db.AutoMigrate(&RunRecord{}, &ItemRecord{}, &ExportRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Load reads the inventory from the database
func (s *SQLStore) Load(ctx context.Context) (*Inventory, error) {
	inv := NewInventory()
	db := s.db.WithContext(ctx)

	var run RunRecord
	res := db.Order("created_at DESC").Limit(1).Find(&run)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to load run: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		inv.Project = run.Project
		inv.RunID = run.ID
		inv.GraphHash = run.GraphHash
	}

	var items []ItemRecord
	if err := db.Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	for i := range items {
		item, err := itemToModel(&items[i])
		if err != nil {
			return nil, err
		}
		inv.Items[item.ID] = item
	}

	var exports []ExportRecord
	if err := db.Order("name ASC").Find(&exports).Error; err != nil {
		return nil, fmt.Errorf("failed to load exports: %w", err)
	}
	for _, rec := range exports {
		var value interface{}
		if rec.Value != "" {
			if err := json.Unmarshal([]byte(rec.Value), &value); err != nil {
				return nil, fmt.Errorf("failed to decode export %s: %w", rec.Name, err)
			}
		}
		inv.Exports[rec.Name] = ExportValue{Value: value, Secret: rec.Secret}
	}

	return inv, nil
}

// Save replaces the stored inventory in one transaction
func (s *SQLStore) Save(ctx context.Context, inv *Inventory) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&ItemRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&ExportRecord{}).Error; err != nil {
			return err
		}

		if inv.RunID != "" {
			run := &RunRecord{ID: inv.RunID, Project: inv.Project, GraphHash: inv.GraphHash}
			if err := tx.Save(run).Error; err != nil {
				return err
			}
		}

		for _, item := range inv.Items {
			rec, err := itemToRecord(item)
			if err != nil {
				return err
			}
			if err := tx.Create(rec).Error; err != nil {
				return err
			}
		}

		for name, export := range inv.Exports {
			value, err := json.Marshal(export.Value)
			if err != nil {
				return fmt.Errorf("failed to encode export %s: %w", name, err)
			}
			if err := tx.Create(&ExportRecord{Name: name, Value: string(value), Secret: export.Secret}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func itemToRecord(item InventoryItem) (*ItemRecord, error) {
	rec := &ItemRecord{
		ID:           item.ID,
		APIGroup:     item.GVK.Group,
		Version:      item.GVK.Version,
		Kind:         item.GVK.Kind,
		Namespace:    item.Namespace,
		Name:         item.Name,
		Provider:     item.Provider,
		DeclaredHash: item.DeclaredHash,
		ResolvedHash: item.ResolvedHash,
		Status:       string(item.Status),
	}
	if item.Live != nil {
		live, err := item.Live.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode live object of %s: %w", item.ID, err)
		}
		rec.Live = string(live)
	}
	return rec, nil
}

func itemToModel(rec *ItemRecord) (InventoryItem, error) {
	item := InventoryItem{
		ID:           rec.ID,
		Namespace:    rec.Namespace,
		Name:         rec.Name,
		Provider:     rec.Provider,
		DeclaredHash: rec.DeclaredHash,
		ResolvedHash: rec.ResolvedHash,
		Status:       ItemStatus(rec.Status),
	}
	item.GVK.Group = rec.APIGroup
	item.GVK.Version = rec.Version
	item.GVK.Kind = rec.Kind

	if rec.Live != "" {
		live := &unstructured.Unstructured{}
		if err := live.UnmarshalJSON([]byte(rec.Live)); err != nil {
			return InventoryItem{}, fmt.Errorf("failed to decode live object of %s: %w", rec.ID, err)
		}
		item.Live = live
	}
	return item, nil
}
