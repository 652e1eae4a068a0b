package models

// RoundQuota is the target share of a round's questions drawn from one subcategory.
type RoundQuota struct {
	ID          uint    `json:"-" gorm:"primaryKey"`
	RoundID     uint    `json:"-" gorm:"uniqueIndex:idx_round_subcategory;not null"`
	Subcategory string  `json:"subcategory" gorm:"uniqueIndex:idx_round_subcategory;size:64;not null"`
	Percentage  float64 `json:"percentage" gorm:"not null"`
}

// TableName specifies the table name for RoundQuota model.
func (RoundQuota) TableName() string {
	return "round_quotas"
}

// PoolShortfall records a subcategory whose active pool could not cover its quota.
type PoolShortfall struct {
	Subcategory   string `json:"subcategory"`
	Requested     int    `json:"requested"`
	Available     int    `json:"available"`
	Redistributed int    `json:"redistributed,omitempty"` // Questions drawn from other subcategories instead
}
