package models

// Photo represents a bird photo record in the database using GORM.
// It corresponds to the 'bird_photos' table.
type Photo struct {
	ID            uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	ImageLocation string   `gorm:"not null;index" json:"image_location"` // URL or media store key
	DateTaken     *string  `gorm:"" json:"date_taken,omitempty"`         // Nullable, free-form text
	Location      string   `gorm:"not null;default:''" json:"location"`
	Latitude      *float64 `gorm:"" json:"latitude,omitempty"`
	Longitude     *float64 `gorm:"" json:"longitude,omitempty"`
	Approved      bool     `gorm:"not null;default:false;index" json:"approved"`

	PhotographerID     *uint   `gorm:"index" json:"photographer_id,omitempty"`
	AISuggestedSpecies *string `gorm:"column:ai_suggested_species" json:"ai_suggested_species,omitempty"`

	CreatedAt int64 `gorm:"not null" json:"created_at"` // Unix timestamp
	UpdatedAt int64 `gorm:"not null" json:"updated_at"` // Unix timestamp

	// Relationships
	Photographer *Photographer `gorm:"foreignKey:PhotographerID;constraint:OnDelete:SET NULL" json:"photographer,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Photo) TableName() string {
	return "bird_photos"
}
