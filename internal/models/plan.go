package models

// Plan is a Verifly billing plan. UsagePrice is the metered per
// verification charge applied by the monthly billing run.
type Plan struct {
	BaseModel

	Name        string  `json:"name" gorm:"size:100;uniqueIndex;not null"`
	Description string  `json:"description" gorm:"size:500"`
	Price       float64 `json:"price"`
	UsagePrice  float64 `json:"usage_price"`
	UsageCap    int     `json:"usage_cap"`
	Visible     bool    `json:"visible"`
}
