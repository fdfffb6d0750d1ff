package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type SimConfig struct {
	APIBaseURL      string
	PostgresDSN     string
	Duration        time.Duration
	Workers         int
	Contenders      int
	Patients        int
	Days            int
	BookRatio       float64
	RescheduleRatio float64
	CancelRatio     float64
}

func main() {
	logger := logging.Bootstrap()

	cfg := SimConfig{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive the scheduling API with concurrent bookings and check that no slot is double-booked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.PostgresDSN == "" {
				cfg.PostgresDSN = os.Getenv("POSTGRES_DSN")
			}
			if err := validateConfig(cfg); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, logger)
		},
		SilenceUsage: true,
	}

	f := cmd.Flags()
	f.StringVar(&cfg.APIBaseURL, "api", "http://localhost:8080", "API base URL")
	f.StringVar(&cfg.PostgresDSN, "dsn", "", "postgres DSN used to create fixtures (defaults to $POSTGRES_DSN)")
	f.DurationVar(&cfg.Duration, "duration", 30*time.Second, "length of the mixed load phase")
	f.IntVar(&cfg.Workers, "workers", 20, "concurrent workers in the load phase")
	f.IntVar(&cfg.Contenders, "contenders", 50, "concurrent bookings fired at one slot in the race phase")
	f.IntVar(&cfg.Patients, "patients", 200, "patients created for the run")
	f.IntVar(&cfg.Days, "days", 5, "days ahead the load phase books into")
	f.Float64Var(&cfg.BookRatio, "book-ratio", 0.5, "share of load operations that book")
	f.Float64Var(&cfg.RescheduleRatio, "reschedule-ratio", 0.15, "share of load operations that reschedule")
	f.Float64Var(&cfg.CancelRatio, "cancel-ratio", 0.1, "share of load operations that cancel; the rest read slots")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("simulation failed")
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("--dsn or POSTGRES_DSN is required")
	}
	if cfg.Workers <= 0 || cfg.Contenders <= 0 || cfg.Patients <= 0 || cfg.Days <= 0 {
		return fmt.Errorf("workers, contenders, patients and days must be positive")
	}
	if sum := cfg.BookRatio + cfg.RescheduleRatio + cfg.CancelRatio; sum > 1.0 {
		return fmt.Errorf("operation ratios sum to %.2f, must be at most 1", sum)
	}
	return nil
}

func run(ctx context.Context, cfg SimConfig, logger zerolog.Logger) error {
	fx, err := createFixtures(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create fixtures: %w", err)
	}

	sim := &Simulator{
		config:   cfg,
		fixtures: fx,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}

	sim.Race(ctx)
	sim.Load(ctx)

	duplicates, err := sim.Verify(ctx)
	sim.PrintReport()
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if duplicates > 0 {
		return fmt.Errorf("found %d double-booked slots", duplicates)
	}
	return nil
}

// Fixtures is one doctor open every day 08:00-18:00 and a pool of patients,
// created directly in Postgres so the run does not depend on seed data.
type Fixtures struct {
	DoctorID uuid.UUID
	Patients []uuid.UUID
	FirstDay time.Time
}

func createFixtures(ctx context.Context, cfg SimConfig, logger zerolog.Logger) (*Fixtures, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN, db.PoolOptions{}, logger)
	cancel()
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	store := schedule.NewPgStore(pool)
	repo := appointment.NewPgRepository(pool)

	specialty := "General Practice"
	doc, err := store.CreateDoctor(ctx, schedule.Doctor{
		Name:        "Dr. Simulation " + gofakeit.LastName(),
		Specialty:   &specialty,
		IsAvailable: true,
	})
	if err != nil {
		return nil, err
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		if err := store.UpsertWeekly(ctx, schedule.WeeklyEntry{
			DoctorID:    doc.ID,
			DayOfWeek:   day,
			IsAvailable: true,
			Start:       schedule.NewClock(8, 0),
			End:         schedule.NewClock(18, 0),
		}); err != nil {
			return nil, err
		}
	}

	fx := &Fixtures{
		DoctorID: doc.ID,
		FirstDay: schedule.Day(time.Now()).AddDate(0, 0, 1),
	}
	for range cfg.Patients {
		email := gofakeit.Email()
		p, err := repo.CreatePatient(ctx, appointment.Patient{Name: gofakeit.Name(), Email: &email})
		if err != nil {
			return nil, err
		}
		fx.Patients = append(fx.Patients, p.ID)
	}

	logger.Info().
		Str("doctor_id", doc.ID.String()).
		Int("patients", len(fx.Patients)).
		Msg("fixtures created")
	return fx, nil
}
