package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Company owns meters and the users that subscribe to live readings
type Company struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Meters    []Meter        `gorm:"foreignKey:CompanyID" json:"-"`
}

// Meter is a remote controller exposing electrical telemetry for one or
// more monitored services
type Meter struct {
	ID              uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt     `gorm:"index" json:"-"`
	CompanyID       uuid.UUID          `gorm:"type:uuid;not null" json:"company_id"`
	Serial          string             `gorm:"not null;uniqueIndex" json:"serial"`
	Hostname        string             `gorm:"not null" json:"hostname"`
	SummatoryDevice string             `gorm:"not null" json:"summatory_device"`
	Active          bool               `gorm:"not null;default:false" json:"active"`
	Company         Company            `gorm:"foreignKey:CompanyID" json:"-"`
	Devices         []Device           `gorm:"foreignKey:MeterID" json:"devices"`
	Services        []MonitoredService `gorm:"foreignKey:MeterID" json:"services"`
}

// Device is an individual metered point within a service. Name is the
// identifier the remote controller knows the device by; Description is
// synced from the controller's deviceInfo resource.
type Device struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	MeterID     uuid.UUID      `gorm:"type:uuid;not null" json:"meter_id"`
	ServiceID   uuid.UUID      `gorm:"type:uuid;not null" json:"service_id"`
	Name        string         `gorm:"not null" json:"name"`
	Description string         `json:"description"`
	// Position 0 is the service's main incomer; it is never queried for
	// per-device telemetry.
	Position int `gorm:"not null;default:0" json:"position"`
}

// MonitoredService is a billable grouping of devices within a meter. The
// metric bundle columns hold the last derived values for the service and
// are fully replaced on every pipeline run that publishes.
type MonitoredService struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	MeterID     uuid.UUID      `gorm:"type:uuid;not null" json:"meter_id"`
	ServiceName string         `gorm:"not null" json:"service_name"`
	Active      bool           `gorm:"not null;default:true" json:"active"`

	ConsumptionSummary []byte `gorm:"type:jsonb" json:"consumption_summary"`
	DailyReadings      []byte `gorm:"type:jsonb" json:"daily_readings"`
	Epimp              []byte `gorm:"type:jsonb" json:"epimp"`
	MonthlyReadings    []byte `gorm:"type:jsonb" json:"monthly_readings"`
	FP                 string `json:"fp"`
	Reactive           string `json:"reactive"`
	DP                 string `json:"dp"`

	Devices []Device `gorm:"foreignKey:ServiceID" json:"devices"`
}

// DemandReading is a historical telemetry point recorded for a meter; the
// capacity clamp and the monthly digest query these by lookback filter.
type DemandReading struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	MeterID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"meter_id"`
	Device      string         `json:"device"`
	ServiceName string         `json:"service_name"`
	Variable    string         `gorm:"not null" json:"variable"`
	Value       float64        `gorm:"not null" json:"value"`
	Cost        float64        `gorm:"not null;default:0" json:"cost"`
	IsPeak      bool           `gorm:"not null;default:false" json:"is_peak"`
	TakenAt     time.Time      `gorm:"not null;index" json:"taken_at"`
}

// Notification is a digest entry delivered to a company's users
type Notification struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	CompanyID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"company_id"`
	Kind        string         `gorm:"not null" json:"kind"`
	Interval    string         `gorm:"not null" json:"interval"`
	Description string         `json:"description"`
	Devices     []byte         `gorm:"type:jsonb" json:"devices"`
	Services    []byte         `gorm:"type:jsonb" json:"services"`
	Emailed     bool           `gorm:"not null;default:false" json:"emailed"`
}

// Metric bundle column names on monitored_services. The pipeline writes
// exactly one of these per run per metric kind.
const (
	AttrConsumptionSummary = "consumption_summary"
	AttrDailyReadings      = "daily_readings"
	AttrEpimp              = "epimp"
	AttrMonthlyReadings    = "monthly_readings"
	AttrFP                 = "fp"
	AttrReactive           = "reactive"
	AttrDP                 = "dp"
)

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Company{},
		&Meter{},
		&Device{},
		&MonitoredService{},
		&DemandReading{},
		&Notification{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
