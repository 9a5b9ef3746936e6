package digest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/enersight/services/telemetry/internal/models"
	"example.com/enersight/services/telemetry/internal/repositories"
)

type MockMeterStore struct {
	mock.Mock
}

func (m *MockMeterStore) GetActivesAssigned(ctx context.Context, companyID string) ([]models.Meter, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Meter), args.Error(1)
}

type MockReadingStore struct {
	mock.Mock
}

func (m *MockReadingStore) GetConsumptionCostsByFilter(ctx context.Context, meterID uuid.UUID, deviceFilter, serviceName string, filterCode int) ([]models.DemandReading, error) {
	args := m.Called(ctx, meterID, deviceFilter, serviceName, filterCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DemandReading), args.Error(1)
}

func (m *MockReadingStore) GetStandardReadings(ctx context.Context, meterID uuid.UUID, deviceFilter, serviceName, variable string, filterCode int) ([]models.DemandReading, error) {
	args := m.Called(ctx, meterID, deviceFilter, serviceName, variable, filterCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DemandReading), args.Error(1)
}

type MockNotificationStore struct {
	mock.Mock
}

func (m *MockNotificationStore) Create(ctx context.Context, notification *models.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

type MockPushSender struct {
	mock.Mock
}

func (m *MockPushSender) SendMessage(ctx context.Context, body interface{}) error {
	args := m.Called(ctx, body)
	return args.Error(0)
}

func (m *MockPushSender) Close() error {
	args := m.Called()
	return args.Error(0)
}

func digestMeter() models.Meter {
	meter := models.Meter{
		ID:        uuid.New(),
		CompanyID: uuid.New(),
		Serial:    "M-100",
		Company:   models.Company{Name: "Acme"},
		Services: []models.MonitoredService{{
			ID:          uuid.New(),
			ServiceName: "Main",
			Devices: []models.Device{
				{Name: "GEN", Position: 0},
				{Name: "T2", Position: 1, Description: "Chiller plant"},
			},
		}},
	}
	return meter
}

func TestRunMonthlyCreatesAllSections(t *testing.T) {
	meter := digestMeter()

	mockMeters := new(MockMeterStore)
	mockMeters.On("GetActivesAssigned", mock.Anything, meter.CompanyID.String()).
		Return([]models.Meter{meter}, nil)

	mockReadings := new(MockReadingStore)
	mockReadings.On("GetConsumptionCostsByFilter", mock.Anything, meter.ID, "T2", "", repositories.LookbackMonth).
		Return([]models.DemandReading{{Cost: 100.5}, {Cost: 49.5}}, nil)
	mockReadings.On("GetConsumptionCostsByFilter", mock.Anything, meter.ID, "", "Main", repositories.LookbackMonth).
		Return([]models.DemandReading{{Cost: 200}}, nil)
	mockReadings.On("GetStandardReadings", mock.Anything, meter.ID, "T2", "", "DP", repositories.LookbackMonth).
		Return([]models.DemandReading{{Value: 3.5}}, nil)
	mockReadings.On("GetStandardReadings", mock.Anything, meter.ID, "", "Main", "DP", repositories.LookbackMonth).
		Return([]models.DemandReading{{Value: 4.5}}, nil)
	mockReadings.On("GetStandardReadings", mock.Anything, meter.ID, "T2", "", "EPimp", repositories.LookbackMonth).
		Return([]models.DemandReading{{Value: 1200}}, nil)
	mockReadings.On("GetStandardReadings", mock.Anything, meter.ID, "", "Main", "EPimp", repositories.LookbackMonth).
		Return([]models.DemandReading{{Value: 1500}}, nil)

	var created []*models.Notification
	mockNotifications := new(MockNotificationStore)
	mockNotifications.On("Create", mock.Anything, mock.AnythingOfType("*models.Notification")).
		Run(func(args mock.Arguments) {
			created = append(created, args.Get(1).(*models.Notification))
		}).
		Return(nil)

	mockPush := new(MockPushSender)
	mockPush.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	svc := New(mockMeters, mockReadings, mockNotifications, mockPush)

	err := svc.RunMonthly(context.Background(), meter.CompanyID.String())
	require.NoError(t, err)

	require.Len(t, created, 3)
	require.Equal(t, "Costo", created[0].Kind)
	require.Equal(t, "Demanda", created[1].Kind)
	require.Equal(t, "EPIMP", created[2].Kind)
	for _, n := range created {
		require.Equal(t, meter.CompanyID, n.CompanyID)
		require.Equal(t, "Mensual", n.Interval)
	}

	var deviceLines []string
	require.NoError(t, json.Unmarshal(created[0].Devices, &deviceLines))
	require.Equal(t, []string{"Chiller plant $150.00"}, deviceLines)

	var serviceLines []string
	require.NoError(t, json.Unmarshal(created[0].Services, &serviceLines))
	require.Equal(t, []string{"Main $200.00"}, serviceLines)

	mockPush.AssertCalled(t, "SendMessage", mock.Anything, mock.MatchedBy(func(body interface{}) bool {
		message, ok := body.(map[string]interface{})
		return ok && message["message"] == "El costo del consumo mensual del servicio Main fue de $200.00."
	}))
}

func TestRunMonthlyWithoutPushSender(t *testing.T) {
	meter := digestMeter()

	mockMeters := new(MockMeterStore)
	mockMeters.On("GetActivesAssigned", mock.Anything, mock.Anything).
		Return([]models.Meter{meter}, nil)

	mockReadings := new(MockReadingStore)
	mockReadings.On("GetConsumptionCostsByFilter", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]models.DemandReading{}, nil)
	mockReadings.On("GetStandardReadings", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]models.DemandReading{}, nil)

	mockNotifications := new(MockNotificationStore)
	mockNotifications.On("Create", mock.Anything, mock.Anything).Return(nil)

	svc := New(mockMeters, mockReadings, mockNotifications, nil)

	err := svc.RunMonthly(context.Background(), meter.CompanyID.String())
	require.NoError(t, err)
	mockNotifications.AssertNumberOfCalls(t, "Create", 3)
}

func TestRunMonthlyAbortsOnStorageFailure(t *testing.T) {
	meter := digestMeter()

	mockMeters := new(MockMeterStore)
	mockMeters.On("GetActivesAssigned", mock.Anything, mock.Anything).
		Return([]models.Meter{meter}, nil)

	mockReadings := new(MockReadingStore)
	mockReadings.On("GetConsumptionCostsByFilter", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, context.Canceled)

	svc := New(mockMeters, mockReadings, new(MockNotificationStore), nil)

	err := svc.RunMonthly(context.Background(), meter.CompanyID.String())
	require.Error(t, err)
}
