package models

import "gorm.io/gorm"

// Species represents a bird species using GORM.
// It corresponds to the 'bird_species' table.
// Identity is the case-folded common_name_key; common_name keeps the
// spelling of the first insert and sorts with NOCASE.
type Species struct {
	ID             uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	CommonName     string  `gorm:"type:TEXT COLLATE NOCASE;not null" json:"common_name"`
	CommonNameKey  string  `gorm:"column:common_name_key;uniqueIndex:idx_species_common_name_key" json:"-"`
	ScientificName *string `gorm:"" json:"scientific_name,omitempty"` // Nullable
	Family         *string `gorm:"" json:"family,omitempty"`          // Nullable
	OrderName      *string `gorm:"column:order_name" json:"order_name,omitempty"`
	Status         *string `gorm:"" json:"status,omitempty"` // "Extinct" / "Not Extinct"
}

// TableName explicitly sets the table name for GORM.
func (Species) TableName() string {
	return "bird_species"
}

// BeforeCreate derives the identity key from the common name.
func (s *Species) BeforeCreate(tx *gorm.DB) error {
	s.CommonNameKey = NameKey(s.CommonName)
	return nil
}

// MissingMetadata reports whether the taxonomy fields still need to be filled in.
func (s *Species) MissingMetadata() bool {
	return s.ScientificName == nil || *s.ScientificName == "" || s.Family == nil || *s.Family == ""
}
