package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ogurasousui/staff-status-engine/internal/core/division"
	"github.com/ogurasousui/staff-status-engine/internal/core/employee"
	"github.com/ogurasousui/staff-status-engine/internal/core/status"
	"github.com/ogurasousui/staff-status-engine/internal/platform/config"
	"github.com/ogurasousui/staff-status-engine/internal/platform/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func memoryConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Driver: config.StorageDriverMemory},
		Engine: config.EngineConfig{
			MaxVacationDays: 45,
			SweepWorkers:    2,
			Location:        time.UTC,
		},
		Notification: config.NotificationConfig{
			QueueSize: 16,
			Workers:   1,
			Sinks:     []string{config.SinkLog},
		},
	}
}

func TestBuild_MemoryDriverWiresServices(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx := context.Background()
	clock := fixedClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	a, err := Build(ctx, memoryConfig(), logger, metrics.New(prometheus.NewRegistry()), clock)
	require.NoError(t, err)

	div, err := a.Divisions.CreateDivision(ctx, division.CreateDivisionInput{Name: "Sales", Code: "sales"})
	require.NoError(t, err)

	hired := time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC)
	emp, err := a.Employees.CreateEmployee(ctx, employee.CreateEmployeeInput{
		DivisionID:   div.ID,
		EmployeeCode: "s-001",
		LastName:     "Suzuki",
		FirstName:    "Ichiro",
		HiredAt:      &hired,
	})
	require.NoError(t, err)

	end := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	rec, err := a.Status.CreateStatus(ctx, status.CreateStatusInput{
		EmployeeID: emp.ID,
		Type:       status.TypeVacation,
		StartDate:  time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		EndDate:    &end,
	})
	require.NoError(t, err)
	assert.Equal(t, status.StatePlanned, rec.State)

	_, err = a.Employees.DismissEmployee(ctx, employee.DismissEmployeeInput{
		ID:            emp.ID,
		DismissalDate: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	cancelled, err := a.Status.GetStatus(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, status.StateCancelled, cancelled.State)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	assert.True(t, strings.Contains(buf.String(), string(status.NotifyStatusCreated)), buf.String())
}

func TestBuild_FeedSinkRequiresPostgres(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig()
	cfg.Notification.Sinks = []string{config.SinkFeed}

	_, err := Build(context.Background(), cfg, logrus.New(), nil, nil)
	require.Error(t, err)
}
