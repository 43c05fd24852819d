package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// ActionItem is one open reconciliation exception. Lifecycle legality lives
// in CanTransitionActionItem (enums.go); normal flow never reopens RESOLVED.
type ActionItem struct {
	ID         int              `gorm:"primary_key" json:"id"`
	RunId      string           `gorm:"size:36;not null;index" json:"run_id"`
	PersonId   *int             `gorm:"index" json:"person_id"`
	Cause      ActionItemCause  `gorm:"type:enum('MISSING_COUNTERPART','AMOUNT_MISMATCH','POLICY_VIOLATION','ORPHAN_RECEIPT','OTHER');size:25;not null;index" json:"cause"`
	Status     ActionItemStatus `gorm:"type:enum('OPEN','IN_REVIEW','RESOLVED');default:'OPEN';size:10;not null;index" json:"status"`
	Details    string           `gorm:"type:text" json:"details"`
	OpenedAt   time.Time        `gorm:"autoCreateTime" json:"opened_at"`
	UpdatedAt  time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	ResolvedAt *time.Time       `json:"resolved_at"`
}

// ActionItemCharge links items to charges many-to-many.
type ActionItemCharge struct {
	ID             int `gorm:"primary_key" json:"id"`
	ActionItemId   int `gorm:"not null;index;index:uniq_item_charge,unique" json:"action_item_id"`
	ChargeRecordId int `gorm:"not null;index;index:uniq_item_charge,unique" json:"charge_record_id"`
}

// DetailsMap decodes the key-value payload; a broken or empty payload reads
// as an empty map.
func (a *ActionItem) DetailsMap() map[string]string {
	m := map[string]string{}
	if a.Details == "" {
		return m
	}
	_ = json.Unmarshal([]byte(a.Details), &m)
	return m
}

func EncodeActionItemDetails(details map[string]string) string {
	if len(details) == 0 {
		return ""
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	return string(raw)
}

// OpenActionItem creates an item and links it to the given charges.
func OpenActionItem(tx *gorm.DB, runId string, personId *int, cause ActionItemCause, details map[string]string, chargeIds ...int) (*ActionItem, error) {
	item := ActionItem{
		RunId:    runId,
		PersonId: personId,
		Cause:    cause,
		Status:   ActionItemStatusOpen,
		Details:  EncodeActionItemDetails(details),
	}
	if err := tx.Create(&item).Error; err != nil {
		return nil, err
	}
	if err := LinkActionItemCharges(tx, item.ID, chargeIds...); err != nil {
		return nil, err
	}
	return &item, nil
}

func LinkActionItemCharges(tx *gorm.DB, itemId int, chargeIds ...int) error {
	for _, chargeId := range chargeIds {
		link := ActionItemCharge{ActionItemId: itemId, ChargeRecordId: chargeId}
		if err := tx.Where(&link).FirstOrCreate(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

// FindOpenItemForCharge returns the unresolved item of the given cause linked
// to a charge, or nil when none exists.
func FindOpenItemForCharge(tx *gorm.DB, chargeId int, cause ActionItemCause) (*ActionItem, error) {
	var item ActionItem
	err := tx.
		Joins("JOIN action_item_charges ON action_item_charges.action_item_id = action_items.id").
		Where("action_item_charges.charge_record_id = ?", chargeId).
		Where("action_items.cause = ? AND action_items.status <> ?", cause, ActionItemStatusResolved).
		Order("action_items.id ASC").
		First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// TransitionActionItem applies a legal lifecycle move inside the caller's
// transaction and stamps ResolvedAt on entry into RESOLVED. It does not
// enforce legality; callers check CanTransitionActionItem first.
func TransitionActionItem(tx *gorm.DB, item *ActionItem, to ActionItemStatus, details map[string]string) error {
	updates := map[string]interface{}{"status": to}
	if to == ActionItemStatusResolved {
		now := time.Now().UTC()
		updates["resolved_at"] = &now
	}
	if details != nil {
		merged := item.DetailsMap()
		for k, v := range details {
			merged[k] = v
		}
		updates["details"] = EncodeActionItemDetails(merged)
	}
	if err := tx.Model(&ActionItem{}).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
		return err
	}
	item.Status = to
	return nil
}

func GetActionItem(tx *gorm.DB, id int) (*ActionItem, error) {
	var item ActionItem
	err := tx.Where("id = ?", id).First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}
