package models

import (
	"time"

	"bitbucket.org/mmdatafocus/expense_recon/config"
)

// VendorAlias maps a normalized vendor string to the canonical form used for
// vendor-term scoring ("sbux" -> "starbucks"). Aliases are global, not
// per run.
type VendorAlias struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Alias     string    `gorm:"size:255;not null;index:uniq_vendor_alias,unique" json:"alias"`
	Canonical string    `gorm:"size:255;not null;index" json:"canonical"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const vendorAliasCacheKey = "VendorAliases"

// GetVendorAliases returns alias -> canonical, cached in redis when
// available. Cache misses fall through to the DB.
func GetVendorAliases() (map[string]string, error) {
	var aliases map[string]string

	exists, err := config.GetRedisObject(vendorAliasCacheKey, &aliases)
	if err != nil {
		return nil, err
	}
	if !exists {
		var rows []*VendorAlias
		db := config.GetDB()
		if err := db.Find(&rows).Error; err != nil {
			return nil, err
		}
		aliases = make(map[string]string, len(rows))
		for _, row := range rows {
			aliases[row.Alias] = row.Canonical
		}
		if err := config.SetRedisObject(vendorAliasCacheKey, &aliases, 10*time.Minute); err != nil {
			return nil, err
		}
	}
	return aliases, nil
}

// InvalidateVendorAliasCache drops the cached table after alias edits.
func InvalidateVendorAliasCache() error {
	return config.RemoveRedisKey(vendorAliasCacheKey)
}
