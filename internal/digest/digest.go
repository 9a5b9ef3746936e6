// Package digest assembles the monthly cost/demand/consumption summary
// notifications. The original job accumulated its lists in module-level
// state and sequenced its queries with wall-clock delays; here every run
// carries its own context object and the stages run in explicit order, so
// overlapping schedules cannot contaminate each other.
package digest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/enersight/services/telemetry/internal/eds"
	"example.com/enersight/services/telemetry/internal/messaging"
	"example.com/enersight/services/telemetry/internal/models"
	"example.com/enersight/services/telemetry/internal/repositories"
)

// MeterStore provides the meters the digest covers
type MeterStore interface {
	GetActivesAssigned(ctx context.Context, companyID string) ([]models.Meter, error)
}

// ReadingStore provides the historical figures the digest summarizes
type ReadingStore interface {
	GetConsumptionCostsByFilter(ctx context.Context, meterID uuid.UUID, deviceFilter, serviceName string, filterCode int) ([]models.DemandReading, error)
	GetStandardReadings(ctx context.Context, meterID uuid.UUID, deviceFilter, serviceName, variable string, filterCode int) ([]models.DemandReading, error)
}

// NotificationStore persists digest notifications
type NotificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Service builds and delivers the monthly digest
type Service struct {
	meters        MeterStore
	readings      ReadingStore
	notifications NotificationStore
	push          messaging.PushSender
}

// New creates the digest service; push may be nil to skip the mobile
// handoff
func New(meters MeterStore, readings ReadingStore, notifications NotificationStore, push messaging.PushSender) *Service {
	return &Service{
		meters:        meters,
		readings:      readings,
		notifications: notifications,
		push:          push,
	}
}

// run is the per-run accumulation context. Nothing in it outlives one
// RunMonthly call.
type run struct {
	deviceCosts        []string
	serviceCosts       []string
	deviceDemand       []string
	serviceDemand      []string
	deviceConsumption  []string
	serviceConsumption []string
	firstServiceCost   string
}

// RunMonthly assembles and delivers the digest for every active meter
func (s *Service) RunMonthly(ctx context.Context, companyID string) error {
	meters, err := s.meters.GetActivesAssigned(ctx, companyID)
	if err != nil {
		return errors.Wrap(err, "failed to load meters for digest")
	}

	for i := range meters {
		if err := s.digestMeter(ctx, &meters[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) digestMeter(ctx context.Context, meter *models.Meter) error {
	r := &run{}

	if err := s.collectCosts(ctx, meter, r); err != nil {
		return err
	}
	if err := s.notify(ctx, meter, "Costo", "Resumen del costo de energia de tus dispositivos.", r.deviceCosts, r.serviceCosts); err != nil {
		return err
	}

	if err := s.collectReadings(ctx, meter, eds.VarSummatoryDP, " kW", r, &r.deviceDemand, &r.serviceDemand); err != nil {
		return err
	}
	if err := s.notify(ctx, meter, "Demanda", "Resumen de la demanda de energia de tus dispositivos.", r.deviceDemand, r.serviceDemand); err != nil {
		return err
	}

	if err := s.collectReadings(ctx, meter, eds.VarActiveEnergy, " kWh", r, &r.deviceConsumption, &r.serviceConsumption); err != nil {
		return err
	}
	if err := s.notify(ctx, meter, "EPIMP", "Resumen del consumo de energia de tus dispositivos.", r.deviceConsumption, r.serviceConsumption); err != nil {
		return err
	}

	s.handoffPush(ctx, meter, r)
	return nil
}

// collectCosts totals the month's consumption cost per device and per
// service
func (s *Service) collectCosts(ctx context.Context, meter *models.Meter, r *run) error {
	for _, device := range digestDevices(meter) {
		points, err := s.readings.GetConsumptionCostsByFilter(ctx, meter.ID, device.Name, "", repositories.LookbackMonth)
		if err != nil {
			return errors.Wrapf(err, "failed to load costs for device %q", device.Name)
		}
		var total float64
		for _, point := range points {
			total += point.Cost
		}
		r.deviceCosts = append(r.deviceCosts, fmt.Sprintf("%s $%.2f", deviceLabel(device), total))
	}

	for _, service := range meter.Services {
		points, err := s.readings.GetConsumptionCostsByFilter(ctx, meter.ID, "", service.ServiceName, repositories.LookbackMonth)
		if err != nil {
			return errors.Wrapf(err, "failed to load costs for service %q", service.ServiceName)
		}
		var total float64
		for _, point := range points {
			total += point.Cost
		}
		formatted := fmt.Sprintf("%s $%.2f", service.ServiceName, total)
		r.serviceCosts = append(r.serviceCosts, formatted)
		if r.firstServiceCost == "" {
			r.firstServiceCost = fmt.Sprintf("$%.2f", total)
		}
	}
	return nil
}

// collectReadings totals one variable per device and per service
func (s *Service) collectReadings(ctx context.Context, meter *models.Meter, variable, unit string, r *run, devices, services *[]string) error {
	for _, device := range digestDevices(meter) {
		points, err := s.readings.GetStandardReadings(ctx, meter.ID, device.Name, "", variable, repositories.LookbackMonth)
		if err != nil {
			return errors.Wrapf(err, "failed to load %s readings for device %q", variable, device.Name)
		}
		var total float64
		for _, point := range points {
			total += point.Value
		}
		*devices = append(*devices, fmt.Sprintf("%s %.2f%s", deviceLabel(device), total, unit))
	}

	for _, service := range meter.Services {
		points, err := s.readings.GetStandardReadings(ctx, meter.ID, "", service.ServiceName, variable, repositories.LookbackMonth)
		if err != nil {
			return errors.Wrapf(err, "failed to load %s readings for service %q", variable, service.ServiceName)
		}
		var total float64
		for _, point := range points {
			total += point.Value
		}
		*services = append(*services, fmt.Sprintf("%s %.2f%s", service.ServiceName, total, unit))
	}
	return nil
}

// notify persists one digest section as a notification
func (s *Service) notify(ctx context.Context, meter *models.Meter, kind, description string, devices, services []string) error {
	deviceList, err := json.Marshal(devices)
	if err != nil {
		return errors.Wrap(err, "failed to encode device list")
	}
	serviceList, err := json.Marshal(services)
	if err != nil {
		return errors.Wrap(err, "failed to encode service list")
	}

	notification := &models.Notification{
		ID:          uuid.New(),
		CompanyID:   meter.CompanyID,
		Kind:        kind,
		Interval:    "Mensual",
		Description: description,
		Devices:     deviceList,
		Services:    serviceList,
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		return errors.Wrapf(err, "failed to create %s notification", kind)
	}

	log.Info().Str("kind", kind).Str("meter", meter.Serial).Msg("Digest notification created")
	return nil
}

// handoffPush emits the mobile push message for the first service's cost,
// best effort
func (s *Service) handoffPush(ctx context.Context, meter *models.Meter, r *run) {
	if s.push == nil || r.firstServiceCost == "" || len(meter.Services) == 0 {
		return
	}

	message := map[string]interface{}{
		"company_id": meter.CompanyID.String(),
		"headline":   fmt.Sprintf("Costos Mensuales - %s", meter.Company.Name),
		"message": fmt.Sprintf("El costo del consumo mensual del servicio %s fue de %s.",
			meter.Services[0].ServiceName, r.firstServiceCost),
	}
	if err := s.push.SendMessage(ctx, message); err != nil {
		log.Warn().Err(err).Str("meter", meter.Serial).Msg("Push handoff failed")
	}
}

// digestDevices returns the non-incomer devices of every service
func digestDevices(meter *models.Meter) []models.Device {
	var devices []models.Device
	for _, service := range meter.Services {
		for i, device := range service.Devices {
			if i == 0 {
				continue
			}
			devices = append(devices, device)
		}
	}
	return devices
}

// deviceLabel prefers the synced description over the controller name
func deviceLabel(device models.Device) string {
	if device.Description != "" {
		return device.Description
	}
	return device.Name
}
