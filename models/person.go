package models

import (
	"time"

	"gorm.io/gorm"
)

// Person is an employee/cardholder identity scoped to one run. Identity is
// (run, external id) when the ledger carries an id, else (run, normalized name).
type Person struct {
	ID             int       `gorm:"primary_key" json:"id"`
	RunId          string    `gorm:"size:36;not null;index" json:"run_id"`
	ExternalId     string    `gorm:"size:64;index" json:"external_id"`
	DisplayName    string    `gorm:"size:255" json:"display_name"`
	NormalizedName string    `gorm:"size:255;index" json:"normalized_name"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FindOrCreatePerson resolves a person within the run, creating the row on
// first sight. externalId takes precedence over the normalized name.
func FindOrCreatePerson(tx *gorm.DB, runId string, externalId string, displayName string, normalizedName string) (*Person, error) {
	var person Person
	var err error

	if externalId != "" {
		err = tx.Where("run_id = ? AND external_id = ?", runId, externalId).First(&person).Error
	} else {
		err = tx.Where("run_id = ? AND external_id = '' AND normalized_name = ?", runId, normalizedName).First(&person).Error
	}
	if err == nil {
		// Backfill a name learned later for an id-only person.
		if person.DisplayName == "" && displayName != "" {
			updates := map[string]interface{}{
				"display_name":    displayName,
				"normalized_name": normalizedName,
			}
			if err := tx.Model(&Person{}).Where("id = ?", person.ID).Updates(updates).Error; err != nil {
				return nil, err
			}
			person.DisplayName = displayName
			person.NormalizedName = normalizedName
		}
		return &person, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	person = Person{
		RunId:          runId,
		ExternalId:     externalId,
		DisplayName:    displayName,
		NormalizedName: normalizedName,
	}
	if err := tx.Create(&person).Error; err != nil {
		return nil, err
	}
	return &person, nil
}
