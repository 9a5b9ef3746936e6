package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/enersight/services/telemetry/internal/models"
)

// Lookback filter codes for historical reading queries
const (
	LookbackDay       = 0
	LookbackWeek      = 1
	LookbackFortnight = 2
	LookbackMonth     = 3
)

// lookbackStart maps a filter code to the start of its window
func lookbackStart(filterCode int, now time.Time) time.Time {
	switch filterCode {
	case LookbackWeek:
		return now.AddDate(0, 0, -7)
	case LookbackFortnight:
		return now.AddDate(0, 0, -14)
	case LookbackMonth:
		return now.AddDate(0, -1, 0)
	default:
		return now.AddDate(0, 0, -1)
	}
}

// MeterRepository provides access to meter data
type MeterRepository struct {
	db *gorm.DB
}

// NewMeterRepository creates a new meter repository
func NewMeterRepository(db *gorm.DB) *MeterRepository {
	return &MeterRepository{db: db}
}

// GetActivesAssigned returns active meters that have at least one active
// service, with company, services, and position-ordered devices preloaded.
// An empty companyID returns every company's meters.
func (r *MeterRepository) GetActivesAssigned(ctx context.Context, companyID string) ([]models.Meter, error) {
	q := r.db.WithContext(ctx).
		Where("active = ?", true).
		Preload("Company").
		Preload("Devices").
		Preload("Services", "active = ?", true).
		Preload("Services.Devices", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		})

	if companyID != "" {
		q = q.Where("company_id = ?", companyID)
	}

	var meters []models.Meter
	if err := q.Find(&meters).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get active assigned meters")
	}

	assigned := meters[:0]
	for _, meter := range meters {
		if len(meter.Services) > 0 {
			assigned = append(assigned, meter)
		}
	}
	return assigned, nil
}

// GetByID gets a meter with its devices preloaded
func (r *MeterRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Meter, error) {
	var meter models.Meter
	err := r.db.WithContext(ctx).
		Preload("Devices").
		First(&meter, id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get meter by ID")
	}
	return &meter, nil
}

// ServiceRepository provides access to monitored service data
type ServiceRepository struct {
	db *gorm.DB
}

// NewServiceRepository creates a new service repository
func NewServiceRepository(db *gorm.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// bundleColumns are the only columns the pipeline may overwrite
var bundleColumns = map[string]bool{
	models.AttrConsumptionSummary: true,
	models.AttrDailyReadings:      true,
	models.AttrEpimp:              true,
	models.AttrMonthlyReadings:    true,
	models.AttrFP:                 true,
	models.AttrReactive:           true,
	models.AttrDP:                 true,
}

// UpdateAttribute fully replaces one metric bundle column on a service and
// returns the updated row
func (r *ServiceRepository) UpdateAttribute(ctx context.Context, service *models.MonitoredService, name string, value interface{}) (*models.MonitoredService, error) {
	return r.UpdateAttributes(ctx, service, map[string]interface{}{name: value})
}

// UpdateAttributes fully replaces a set of metric bundle columns on a
// service and returns the updated row
func (r *ServiceRepository) UpdateAttributes(ctx context.Context, service *models.MonitoredService, values map[string]interface{}) (*models.MonitoredService, error) {
	for name := range values {
		if !bundleColumns[name] {
			return nil, errors.Errorf("refusing to update non-bundle column %q", name)
		}
	}

	result := r.db.WithContext(ctx).
		Model(&models.MonitoredService{}).
		Where("id = ?", service.ID).
		Updates(values)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to update service attributes")
	}
	if result.RowsAffected == 0 {
		return nil, errors.New("no monitored service updated")
	}

	var updated models.MonitoredService
	if err := r.db.WithContext(ctx).First(&updated, service.ID).Error; err != nil {
		return nil, errors.Wrap(err, "failed to reload updated service")
	}
	return &updated, nil
}

// DeviceRepository provides access to device data
type DeviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// UpdateDescriptions stores controller-reported descriptions on a meter's
// devices, keyed by device name
func (r *DeviceRepository) UpdateDescriptions(ctx context.Context, meterID uuid.UUID, descriptions map[string]string) error {
	for name, description := range descriptions {
		err := r.db.WithContext(ctx).
			Model(&models.Device{}).
			Where("meter_id = ? AND name = ?", meterID, name).
			Update("description", description).Error
		if err != nil {
			return errors.Wrapf(err, "failed to update description for device %q", name)
		}
	}
	return nil
}

// ReadingRepository provides access to historical telemetry points
type ReadingRepository struct {
	db *gorm.DB
}

// NewReadingRepository creates a new reading repository
func NewReadingRepository(db *gorm.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// GetDemandReadingsByFilter returns a meter's demand-peak points inside the
// lookback window. deviceFilter and serviceName narrow the query when
// non-empty.
func (r *ReadingRepository) GetDemandReadingsByFilter(ctx context.Context, meterID uuid.UUID, deviceFilter, serviceName string, filterCode int) ([]models.DemandReading, error) {
	return r.getReadings(ctx, meterID, deviceFilter, serviceName, "DP", filterCode)
}

// GetStandardReadings returns a meter's points for an arbitrary variable
// inside the lookback window
func (r *ReadingRepository) GetStandardReadings(ctx context.Context, meterID uuid.UUID, deviceFilter, serviceName, variable string, filterCode int) ([]models.DemandReading, error) {
	return r.getReadings(ctx, meterID, deviceFilter, serviceName, variable, filterCode)
}

// GetConsumptionCostsByFilter returns the consumption points carrying cost
// figures for the digest
func (r *ReadingRepository) GetConsumptionCostsByFilter(ctx context.Context, meterID uuid.UUID, deviceFilter, serviceName string, filterCode int) ([]models.DemandReading, error) {
	return r.getReadings(ctx, meterID, deviceFilter, serviceName, "EPimp", filterCode)
}

func (r *ReadingRepository) getReadings(ctx context.Context, meterID uuid.UUID, deviceFilter, serviceName, variable string, filterCode int) ([]models.DemandReading, error) {
	q := r.db.WithContext(ctx).
		Where("meter_id = ? AND variable = ? AND taken_at >= ?",
			meterID, variable, lookbackStart(filterCode, time.Now())).
		Order("taken_at ASC")

	if deviceFilter != "" {
		q = q.Where("device = ?", deviceFilter)
	}
	if serviceName != "" {
		q = q.Where("service_name = ?", serviceName)
	}

	var readings []models.DemandReading
	if err := q.Find(&readings).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get readings by filter")
	}
	return readings, nil
}

// CompanyRepository provides access to companies
type CompanyRepository struct {
	db *gorm.DB
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// ListIDs returns the IDs of every company with at least one active meter
func (r *CompanyRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Meter{}).
		Where("active = ?", true).
		Distinct("company_id").
		Pluck("company_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list company ids")
	}
	return ids, nil
}

// NotificationRepository provides access to digest notifications
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create persists a digest notification
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}
