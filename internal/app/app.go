// Package app wires configuration into the stores, brokers and services
// shared by the API server and the outbox worker.
package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-scheduler/internal/config"
	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository"
	"github.com/jwalitptl/clinic-scheduler/internal/repository/memory"
	"github.com/jwalitptl/clinic-scheduler/internal/repository/postgres"
	"github.com/jwalitptl/clinic-scheduler/internal/service/appointment"
	"github.com/jwalitptl/clinic-scheduler/internal/service/business"
	"github.com/jwalitptl/clinic-scheduler/internal/worker"
	"github.com/jwalitptl/clinic-scheduler/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-scheduler/pkg/metrics"
)

const MetricsNamespace = "scheduler"

// Store is implemented by both the postgres and the in-memory backends.
type Store interface {
	Businesses() repository.BusinessRepository
	Staff() repository.StaffRepository
	Patients() repository.PatientRepository
	Appointments() repository.AppointmentRepository
	Outbox() repository.OutboxRepository
}

// Stores is an opened backend. DB is nil on the memory driver.
type Stores struct {
	Store
	DB     *sqlx.DB
	Memory *memory.Store
}

func (s *Stores) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// OpenStores connects to the configured database driver.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig) (*Stores, error) {
	switch cfg.Driver {
	case "memory":
		mem := memory.NewStore()
		return &Stores{Store: mem, Memory: mem}, nil
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Stores{Store: postgres.NewStore(db), DB: db}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors next to the scheduler metrics.
func NewRegistry() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewMetrics(reg, MetricsNamespace)
}

// OpenBroker connects the Redis event broker.
func OpenBroker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.RedisBroker, error) {
	return redis.NewRedisBroker(ctx, BrokerConfig(cfg), logger)
}

func BrokerConfig(cfg *config.Config) redis.Config {
	return redis.Config{
		URL:             cfg.Redis.URL,
		MaxRetries:      cfg.Redis.MaxRetries,
		RetryBackoff:    cfg.Redis.RetryBackoff,
		PoolSize:        cfg.Redis.PoolSize,
		MinIdleConns:    cfg.Redis.MinIdleConns,
		BreakerFailures: cfg.Outbox.BreakerFailures,
		BreakerTimeout:  cfg.Outbox.BreakerTimeout,
	}
}

func RelayConfig(cfg *config.Config) worker.RelayConfig {
	return worker.RelayConfig{
		Channel:       cfg.Redis.Channel,
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
	}
}

// NewAppointmentService builds the scheduling service and the business
// policy cache it reads hours and timezones from.
func NewAppointmentService(cfg config.SchedulingConfig, store Store, m *metrics.Metrics, logger zerolog.Logger) (*appointment.Service, error) {
	hours, err := cfg.DefaultHours()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	policies := business.NewService(store.Businesses(), business.PolicyConfig{
		DefaultHours:    hours,
		DefaultLocation: loc,
		TTL:             cfg.BusinessCacheTTL,
	})
	return appointment.NewService(appointment.Dependencies{
		Appointments: store.Appointments(),
		Staff:        store.Staff(),
		Patients:     store.Patients(),
		Policies:     policies,
		Metrics:      m,
		Logger:       logger,
	}, appointment.Config{
		DefaultDuration: cfg.DefaultDuration,
		Granularity:     cfg.Granularity,
	}), nil
}

// Fixed identifiers of the demo tenant seeded into the memory driver.
var (
	DemoBusinessID = uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000001")
	DemoAdminID    = uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000010")
	DemoDoctorID   = uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000011")
	DemoNurseID    = uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000012")
	DemoPatientID  = uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000100")
)

// SeedDemo loads a single bookable tenant into a memory store so the API
// can be exercised without a database.
func SeedDemo(store *memory.Store, timezone string) {
	b := &model.Business{
		Name:             "Demo Clinic",
		Timezone:         timezone,
		SubscriptionPlan: model.PlanFree,
		IsActive:         true,
	}
	b.ID = DemoBusinessID
	store.AddBusiness(b)

	staff := []struct {
		id   uuid.UUID
		name string
		role model.Role
	}{
		{DemoAdminID, "Demo Admin", model.RoleAdmin},
		{DemoDoctorID, "Dr. Demo", model.RoleDoctor},
		{DemoNurseID, "Demo Nurse", model.RoleNurse},
	}
	for _, s := range staff {
		st := &model.Staff{BusinessID: DemoBusinessID, Name: s.name, Role: s.role, IsActive: true}
		st.ID = s.id
		store.AddStaff(st)
	}

	p := &model.Patient{BusinessID: DemoBusinessID, FirstName: "Demo", LastName: "Patient"}
	p.ID = DemoPatientID
	store.AddPatient(p)
}
