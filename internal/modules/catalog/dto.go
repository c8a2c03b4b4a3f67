package catalog

type CreateSlotRequest struct {
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	Time          string `json:"time" validate:"required,clock"`
	TotalCapacity int    `json:"totalCapacity" validate:"required,min=1,max=500"`
	TariffID      string `json:"tariffId" validate:"omitempty,uuid"`
	Status        string `json:"status" validate:"omitempty,oneof=ACTIVE BLOCKED"`
}

// UpdateSlotRequest changes only the fields that are set.
type UpdateSlotRequest struct {
	Date              *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time              *string `json:"time" validate:"omitempty,clock"`
	TotalCapacity     *int    `json:"totalCapacity" validate:"omitempty,min=1,max=500"`
	AvailableCapacity *int    `json:"availableCapacity" validate:"omitempty,min=0"`
	Status            *string `json:"status" validate:"omitempty,oneof=ACTIVE BLOCKED"`
	TariffID          *string `json:"tariffId" validate:"omitempty,uuid"`
}

type GenerateSlotsRequest struct {
	DateFrom string   `json:"dateFrom" validate:"required,datetime=2006-01-02"`
	DateTo   string   `json:"dateTo" validate:"required,datetime=2006-01-02"`
	Times    []string `json:"times" validate:"required,min=1,dive,clock"`
	Capacity int      `json:"capacity" validate:"required,min=1,max=500"`
	Weekdays []string `json:"weekdays" validate:"omitempty,dive,weekday"`
}

type GenerateSlotsResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

type ScheduleRequest struct {
	DayOfWeek    string `json:"dayOfWeek" validate:"omitempty,weekday"`
	SpecificDate string `json:"specificDate" validate:"omitempty,datetime=2006-01-02"`
	TimeFrom     string `json:"timeFrom" validate:"omitempty,clock"`
	TimeTo       string `json:"timeTo" validate:"omitempty,clock"`
	Priority     int    `json:"priority" validate:"min=0,max=100"`
}

type CreateTariffRequest struct {
	Name        string            `json:"name" validate:"required,min=2,max=100"`
	AdultPrice  float64           `json:"adultPrice" validate:"min=0"`
	ChildPrice  float64           `json:"childPrice" validate:"min=0"`
	InfantPrice float64           `json:"infantPrice" validate:"min=0"`
	Description string            `json:"description" validate:"max=2000"`
	Schedules   []ScheduleRequest `json:"schedules" validate:"dive"`
}

type UpdateTariffRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=2,max=100"`
	AdultPrice  *float64 `json:"adultPrice" validate:"omitempty,min=0"`
	ChildPrice  *float64 `json:"childPrice" validate:"omitempty,min=0"`
	InfantPrice *float64 `json:"infantPrice" validate:"omitempty,min=0"`
	Description *string  `json:"description" validate:"omitempty,max=2000"`
	IsActive    *bool    `json:"isActive"`
}

func (r UpdateTariffRequest) changesPrices() bool {
	return r.AdultPrice != nil || r.ChildPrice != nil || r.InfantPrice != nil
}
