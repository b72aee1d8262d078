package models

import "gorm.io/gorm"

// Photographer represents the person credited for a photo.
// It corresponds to the 'photographers' table.
type Photographer struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name    string `gorm:"type:TEXT COLLATE NOCASE;not null" json:"name"`
	NameKey string `gorm:"column:name_key;uniqueIndex:idx_photographer_name_key" json:"-"`
}

// TableName explicitly sets the table name for GORM.
func (Photographer) TableName() string {
	return "photographers"
}

// BeforeCreate derives the identity key from the name.
func (p *Photographer) BeforeCreate(tx *gorm.DB) error {
	p.NameKey = NameKey(p.Name)
	return nil
}
