// Package pipeline orchestrates the telemetry polling runs: resolve the
// date window, poll every service of every active meter, derive the
// metric bundles, clamp capacity against historical peaks, persist, and
// fan the results out to company subscribers.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/enersight/services/telemetry/config"
	"example.com/enersight/services/telemetry/internal/dates"
	"example.com/enersight/services/telemetry/internal/derive"
	"example.com/enersight/services/telemetry/internal/eds"
	"example.com/enersight/services/telemetry/internal/models"
	"example.com/enersight/services/telemetry/internal/repositories"
	"example.com/enersight/services/telemetry/internal/tracing"
)

// MeterStore provides the meters the pipeline reads
type MeterStore interface {
	GetActivesAssigned(ctx context.Context, companyID string) ([]models.Meter, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meter, error)
}

// ServiceStore persists derived metric bundles onto monitored services
type ServiceStore interface {
	UpdateAttribute(ctx context.Context, service *models.MonitoredService, name string, value interface{}) (*models.MonitoredService, error)
	UpdateAttributes(ctx context.Context, service *models.MonitoredService, values map[string]interface{}) (*models.MonitoredService, error)
}

// DeviceStore persists controller-reported device descriptions
type DeviceStore interface {
	UpdateDescriptions(ctx context.Context, meterID uuid.UUID, descriptions map[string]string) error
}

// ReadingStore provides historical demand points for the capacity clamp
type ReadingStore interface {
	GetDemandReadingsByFilter(ctx context.Context, meterID uuid.UUID, deviceFilter, serviceName string, filterCode int) ([]models.DemandReading, error)
}

// Publisher fans a payload out to a company's connected subscribers
type Publisher interface {
	Publish(ctx context.Context, companyID uuid.UUID, payload []byte) error
}

// Indexer records published bundles for history search
type Indexer interface {
	IndexBundle(ctx context.Context, event, serviceName string, bundle interface{}) error
}

// Poller issues one bounded GET against a controller URL
type Poller interface {
	Poll(ctx context.Context, url string) ([]byte, error)
}

// RunError is the structured error surfaced to the scheduler/API caller
type RunError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed (%d): %s", e.Status, e.Message)
}

// StorageError marks a persistence failure; unlike poll failures it always
// aborts the whole run
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Service runs the polling-and-aggregation pipeline
type Service struct {
	meters    MeterStore
	services  ServiceStore
	devices   DeviceStore
	readings  ReadingStore
	publisher Publisher
	indexer   Indexer
	poller    Poller
	resolver  *dates.Resolver
	tariff    config.TariffConfig
	tracer    tracing.Tracer
}

// New creates the pipeline service. publisher and indexer may be nil, in
// which case the corresponding step is skipped.
func New(
	meters MeterStore,
	services ServiceStore,
	devices DeviceStore,
	readings ReadingStore,
	publisher Publisher,
	indexer Indexer,
	poller Poller,
	resolver *dates.Resolver,
	tariff config.TariffConfig,
	tracer tracing.Tracer,
) *Service {
	return &Service{
		meters:    meters,
		services:  services,
		devices:   devices,
		readings:  readings,
		publisher: publisher,
		indexer:   indexer,
		poller:    poller,
		resolver:  resolver,
		tariff:    tariff,
		tracer:    tracer,
	}
}

// branchFunc handles one service of one meter for one metric kind
type branchFunc func(ctx context.Context, meter *models.Meter, service *models.MonitoredService, descriptions map[string]string) error

// RunConsumptionSummary polls the month-to-date window and publishes the
// per-device consumption totals of every service
func (s *Service) RunConsumptionSummary(ctx context.Context, companyID string) error {
	return s.run(ctx, "consumption-summary-run", companyID, s.consumptionSummaryBranch)
}

// RunDailyReadings polls the prior day and publishes consumption,
// distribution, charge, and clamped capacity of every service
func (s *Service) RunDailyReadings(ctx context.Context, companyID string) error {
	return s.run(ctx, "daily-readings-run", companyID, s.dailyReadingsBranch)
}

// RunEpimpHistory polls the month-to-date window and publishes the
// per-bucket active-energy history of every service
func (s *Service) RunEpimpHistory(ctx context.Context, companyID string) error {
	return s.run(ctx, "epimp-history-run", companyID, s.epimpHistoryBranch)
}

// RunPowerFactorReadings polls the prior month and publishes power factor
// and reactive energy of every service
func (s *Service) RunPowerFactorReadings(ctx context.Context, companyID string) error {
	return s.run(ctx, "power-factor-run", companyID, s.powerFactorBranch)
}

// RunMonthlyReadings polls the prior month and publishes consumption,
// distribution, and clamped capacity of every service
func (s *Service) RunMonthlyReadings(ctx context.Context, companyID string) error {
	return s.run(ctx, "monthly-readings-run", companyID, s.monthlyReadingsBranch)
}

// RunOdometerReadings reads the instantaneous summatory value and
// publishes the odometer figure of every service
func (s *Service) RunOdometerReadings(ctx context.Context, companyID string) error {
	return s.run(ctx, "odometer-readings-run", companyID, s.odometerBranch)
}

// run processes meters strictly sequentially; a meter's wave of services
// must fully settle before the next meter starts
func (s *Service) run(ctx context.Context, name, companyID string, branch branchFunc) error {
	txn := s.tracer.StartTransaction(name)
	defer s.tracer.EndTransaction(txn)

	meters, err := s.meters.GetActivesAssigned(ctx, companyID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return &StorageError{Err: err}
	}

	for i := range meters {
		if err := s.runMeter(ctx, &meters[i], branch); err != nil {
			s.tracer.RecordError(txn, err)
			return err
		}
	}
	return nil
}

// runMeter polls all of one meter's services concurrently and settles the
// wave. Storage failures abort the run. A network failure escalates only
// when the meter has a single service; on a multi-service meter one
// mis-provisioned device must not block its siblings.
func (s *Service) runMeter(ctx context.Context, meter *models.Meter, branch branchFunc) error {
	descriptions := deviceDescriptions(meter)

	outcomes := make([]error, len(meter.Services))
	var wg sync.WaitGroup
	for i := range meter.Services {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = branch(ctx, meter, &meter.Services[i], descriptions)
		}(i)
	}
	wg.Wait()

	single := len(meter.Services) == 1
	for i, err := range outcomes {
		if err == nil {
			continue
		}

		var storageErr *StorageError
		if errors.As(err, &storageErr) {
			return err
		}

		var netErr *eds.NetworkError
		if errors.As(err, &netErr) && single {
			return &RunError{Status: 500, Message: "failed to read meter " + meter.Serial}
		}

		log.Warn().
			Err(err).
			Str("meter", meter.Serial).
			Str("service", meter.Services[i].ServiceName).
			Msg("Service branch failed, siblings continue")
	}
	return nil
}

func (s *Service) consumptionSummaryBranch(ctx context.Context, meter *models.Meter, service *models.MonitoredService, descriptions map[string]string) error {
	window, err := s.resolver.Resolve(dates.FilterMonth)
	if err != nil {
		return err
	}

	records, err := s.pollRecords(ctx, meter, service, window, false)
	if err != nil || records == nil {
		return err
	}

	summary := derive.ConsumptionSummary(records, descriptions)
	if summary == nil {
		return nil
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "failed to marshal consumption summary")
	}
	return s.persistAndPublish(ctx, meter, service, "consumptionSummary",
		map[string]interface{}{models.AttrConsumptionSummary: data}, summary)
}

func (s *Service) dailyReadingsBranch(ctx context.Context, meter *models.Meter, service *models.MonitoredService, _ map[string]string) error {
	window, err := s.resolver.Resolve(dates.FilterDayAverage)
	if err != nil {
		return err
	}

	records, err := s.pollRecords(ctx, meter, service, window, false)
	if err != nil || records == nil {
		return err
	}

	bundle := derive.Daily(records[0], window.Hours, s.tariff.ChargeFactor, s.tariff.DistributionPrice)
	bundle.LastUpdated = time.Now().Format(time.RFC3339)

	capacity, err := s.capacity(ctx, meter, service, repositories.LookbackDay, derive.Distribution(bundle.Distribution))
	if err != nil {
		return err
	}
	bundle.Capacity = capacity

	data, err := json.Marshal(bundle)
	if err != nil {
		return errors.Wrap(err, "failed to marshal daily readings")
	}
	return s.persistAndPublish(ctx, meter, service, "dailyReading",
		map[string]interface{}{models.AttrDailyReadings: data}, bundle)
}

func (s *Service) epimpHistoryBranch(ctx context.Context, meter *models.Meter, service *models.MonitoredService, _ map[string]string) error {
	window, err := s.resolver.Resolve(dates.FilterMonth)
	if err != nil {
		return err
	}

	records, err := s.pollRecords(ctx, meter, service, window, false)
	if err != nil || records == nil {
		return err
	}

	history := derive.EpimpHistory(records)
	if history == nil {
		return nil
	}

	data, err := json.Marshal(history)
	if err != nil {
		return errors.Wrap(err, "failed to marshal epimp history")
	}
	return s.persistAndPublish(ctx, meter, service, "epimpHistoryReading",
		map[string]interface{}{models.AttrEpimp: data}, history)
}

func (s *Service) powerFactorBranch(ctx context.Context, meter *models.Meter, service *models.MonitoredService, _ map[string]string) error {
	window, err := s.resolver.Resolve(dates.FilterMonthAverage)
	if err != nil {
		return err
	}

	records, err := s.pollRecords(ctx, meter, service, window, true)
	if err != nil || records == nil {
		return err
	}

	// Only the first bucket of the window feeds this metric
	fp, reactive := derive.PowerFactor(records[0])

	updated, err := s.services.UpdateAttributes(ctx, service, map[string]interface{}{
		models.AttrFP:       derive.Fixed2(fp),
		models.AttrReactive: derive.Fixed2(reactive),
	})
	if err != nil {
		return &StorageError{Err: err}
	}

	s.publish(ctx, meter.CompanyID, "powerFactor", updated.FP, updated.ServiceName)
	s.publish(ctx, meter.CompanyID, "reactive", updated.Reactive, updated.ServiceName)
	s.index(ctx, "powerFactor", updated.ServiceName, map[string]string{
		"fp":       updated.FP,
		"reactive": updated.Reactive,
	})
	return nil
}

func (s *Service) monthlyReadingsBranch(ctx context.Context, meter *models.Meter, service *models.MonitoredService, _ map[string]string) error {
	window, err := s.resolver.Resolve(dates.FilterMonthAverage)
	if err != nil {
		return err
	}

	records, err := s.pollRecords(ctx, meter, service, window, false)
	if err != nil || records == nil {
		return err
	}

	bundle := derive.Monthly(records[0], window.Days, s.tariff.ChargeFactor)

	capacity, err := s.capacity(ctx, meter, service, repositories.LookbackMonth, derive.Distribution(bundle.Distribution))
	if err != nil {
		return err
	}
	bundle.Capacity = capacity

	data, err := json.Marshal(bundle)
	if err != nil {
		return errors.Wrap(err, "failed to marshal monthly readings")
	}
	return s.persistAndPublish(ctx, meter, service, "monthlyReading",
		map[string]interface{}{models.AttrMonthlyReadings: data}, bundle)
}

func (s *Service) odometerBranch(ctx context.Context, meter *models.Meter, service *models.MonitoredService, _ map[string]string) error {
	body, err := s.poller.Poll(ctx, eds.ValuesQuery(meter.Hostname, meter.SummatoryDevice))
	if err != nil {
		return err
	}

	values := eds.ParseValues(body)
	if values == nil {
		return nil
	}

	dp, ok := derive.Odometer(values[0].Float())
	if !ok {
		// zero reading means "no update", the prior odometer stands
		return nil
	}

	formatted := derive.Fixed2(dp)
	return s.persistAndPublish(ctx, meter, service, "odometerReading",
		map[string]interface{}{models.AttrDP: formatted}, formatted)
}

// SyncDeviceDescriptions refreshes a meter's device descriptions from the
// controller's deviceInfo resource
func (s *Service) SyncDeviceDescriptions(ctx context.Context, meterID uuid.UUID) error {
	meter, err := s.meters.GetByID(ctx, meterID)
	if err != nil {
		return &StorageError{Err: err}
	}

	ids := make([]string, 0, len(meter.Devices))
	for _, device := range meter.Devices {
		ids = append(ids, device.Name)
	}

	body, err := s.poller.Poll(ctx, eds.DeviceInfoQuery(meter.Hostname, ids))
	if err != nil {
		return &RunError{Status: 501, Message: "failed to read device descriptions for meter " + meter.Serial}
	}

	infos := eds.ParseDeviceInfo(body)
	if infos == nil {
		return nil
	}

	descriptions := make(map[string]string, len(infos))
	for _, info := range infos {
		description := info.Description
		if description == "" {
			description = "EDS"
		}
		descriptions[info.ID] = description
	}

	if err := s.devices.UpdateDescriptions(ctx, meter.ID, descriptions); err != nil {
		return &StorageError{Err: err}
	}
	return nil
}

// pollRecords polls the records resource for one service and normalizes
// the response. A nil record list with a nil error means the cycle has
// nothing to publish and the prior bundle stands.
func (s *Service) pollRecords(ctx context.Context, meter *models.Meter, service *models.MonitoredService, window dates.Window, withReactive bool) ([]eds.Record, error) {
	url := eds.RecordsQuery(meter.Hostname, deviceNames(service), window, withReactive)

	body, err := s.poller.Poll(ctx, url)
	if err != nil {
		return nil, err
	}

	records := eds.ParseRecords(body)
	if records == nil {
		log.Debug().
			Str("meter", meter.Serial).
			Str("service", service.ServiceName).
			Msg("Controller returned no parseable records")
	}
	return records, nil
}

// capacity clamps a freshly derived distribution against the historical
// peak demand. An empty peak history yields capacity 0, never the fresh
// value.
func (s *Service) capacity(ctx context.Context, meter *models.Meter, service *models.MonitoredService, filterCode int, distribution float64) (float64, error) {
	points, err := s.readings.GetDemandReadingsByFilter(ctx, meter.ID, "", service.ServiceName, filterCode)
	if err != nil {
		return 0, &StorageError{Err: err}
	}

	var maxDp float64
	for _, point := range points {
		if point.IsPeak && point.Value > maxDp {
			maxDp = point.Value
		}
	}
	return math.Min(maxDp, distribution), nil
}

// persistAndPublish writes the bundle columns, then emits the publish
// event and best-effort index entry. Persistence failure aborts the
// service's branch before any publish.
func (s *Service) persistAndPublish(ctx context.Context, meter *models.Meter, service *models.MonitoredService, event string, values map[string]interface{}, bundle interface{}) error {
	updated, err := s.services.UpdateAttributes(ctx, service, values)
	if err != nil {
		return &StorageError{Err: err}
	}

	s.publish(ctx, meter.CompanyID, event, bundle, updated.ServiceName)
	s.index(ctx, event, updated.ServiceName, bundle)
	return nil
}

// publish emits one fire-and-forget event to the company's subscribers
func (s *Service) publish(ctx context.Context, companyID uuid.UUID, event string, data interface{}, serviceName string) {
	if s.publisher == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"socketEvent": event,
		"data":        data,
		"service":     serviceName,
	})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to encode publish payload")
		return
	}

	if err := s.publisher.Publish(ctx, companyID, payload); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Publish failed, subscribers miss this cycle")
	}
}

// index records the published bundle for history search, best effort
func (s *Service) index(ctx context.Context, event, serviceName string, bundle interface{}) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexBundle(ctx, event, serviceName, bundle); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Failed to index bundle")
	}
}

// deviceDescriptions builds the per-run device lookup before any
// concurrent service work starts; branches only read it
func deviceDescriptions(meter *models.Meter) map[string]string {
	descriptions := make(map[string]string)
	for _, service := range meter.Services {
		for i, device := range service.Devices {
			if i == 0 {
				continue
			}
			descriptions[device.Name] = device.Description
		}
	}
	return descriptions
}

// deviceNames returns a service's device names in position order
func deviceNames(service *models.MonitoredService) []string {
	names := make([]string, 0, len(service.Devices))
	for _, device := range service.Devices {
		names = append(names, device.Name)
	}
	return names
}
