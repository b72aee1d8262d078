package models

// PhotoSpecies links a photo to a species. The composite primary key keeps
// each (photo_id, species_id) pair unique; both columns reference their rows
// and the link goes away with either side.
type PhotoSpecies struct {
	PhotoID   uint     `gorm:"primaryKey;autoIncrement:false" json:"photo_id"`
	SpeciesID uint     `gorm:"primaryKey;autoIncrement:false;index" json:"species_id"`
	Photo     *Photo   `gorm:"foreignKey:PhotoID;constraint:OnDelete:CASCADE" json:"-"`
	Species   *Species `gorm:"foreignKey:SpeciesID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName explicitly sets the table name for GORM.
func (PhotoSpecies) TableName() string {
	return "bird_photo_species"
}
