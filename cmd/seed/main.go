package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var blockReasons = []string{
	"ward round",
	"theatre list",
	"department meeting",
	"training",
	"on call cover",
}

type seedOptions struct {
	dsn      string
	doctors  int
	patients int
	blocks   int
	migrate  bool
	seed     int64
}

func main() {
	logger := logging.Bootstrap()

	opts := seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the scheduling database with fake doctors, rosters and patients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.dsn == "" {
				opts.dsn = os.Getenv("POSTGRES_DSN")
			}
			if opts.dsn == "" {
				return fmt.Errorf("--dsn or POSTGRES_DSN is required")
			}
			return run(cmd.Context(), opts, logger)
		},
		SilenceUsage: true,
	}

	f := cmd.Flags()
	f.StringVar(&opts.dsn, "dsn", "", "postgres DSN (defaults to $POSTGRES_DSN)")
	f.IntVar(&opts.doctors, "doctors", 20, "number of doctors to create")
	f.IntVar(&opts.patients, "patients", 2000, "number of patients to create")
	f.IntVar(&opts.blocks, "blocks", 10, "number of blocked intervals over the next two weeks")
	f.BoolVar(&opts.migrate, "migrate", false, "apply the embedded schema first")
	f.Int64Var(&opts.seed, "seed", 0, "random seed (0 picks one from the clock)")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
}

func run(ctx context.Context, opts seedOptions, logger zerolog.Logger) error {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connectCtx, opts.dsn, db.PoolOptions{}, logger)
	cancel()
	if err != nil {
		return err
	}
	defer pool.Close()

	if opts.migrate {
		applied, err := db.NewMigrator(pool).Up(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("applied", applied).Msg("schema up to date")
	}

	if opts.seed == 0 {
		opts.seed = time.Now().UnixNano()
	}
	faker := gofakeit.New(uint64(opts.seed))

	store := schedule.NewPgStore(pool)
	doctorIDs, err := seedDoctors(ctx, store, faker, opts.doctors, logger)
	if err != nil {
		return fmt.Errorf("seed doctors: %w", err)
	}
	if err := seedBlocks(ctx, store, faker, doctorIDs, opts.blocks, logger); err != nil {
		return fmt.Errorf("seed blocks: %w", err)
	}
	if err := seedPatients(ctx, pool, faker, opts.patients, logger); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}

	logger.Info().Msg("seed complete")
	return nil
}

// seedDoctors creates doctors with a Monday-Friday roster. Roughly one in
// four also works Saturday mornings; Sunday is always closed.
func seedDoctors(ctx context.Context, store *schedule.PgStore, faker *gofakeit.Faker, count int, logger zerolog.Logger) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding doctors")

	starts := []string{"08:00", "08:30", "09:00", "10:00"}
	ids := make([]uuid.UUID, 0, count)

	for range count {
		specialty := specialties[faker.Number(0, len(specialties)-1)]
		doc, err := store.CreateDoctor(ctx, schedule.Doctor{
			Name:        "Dr. " + faker.Name(),
			Specialty:   &specialty,
			IsAvailable: faker.Number(1, 20) != 1,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)

		start := schedule.MustParseClock(starts[faker.Number(0, len(starts)-1)])
		end := start.Add(8 * 60)

		for day := time.Monday; day <= time.Friday; day++ {
			if err := store.UpsertWeekly(ctx, schedule.WeeklyEntry{
				DoctorID: doc.ID, DayOfWeek: day, IsAvailable: true, Start: start, End: end,
			}); err != nil {
				return nil, err
			}
		}

		saturday := schedule.WeeklyEntry{DoctorID: doc.ID, DayOfWeek: time.Saturday}
		if faker.Number(1, 4) == 1 {
			saturday.IsAvailable = true
			saturday.Start = schedule.NewClock(9, 0)
			saturday.End = schedule.NewClock(13, 0)
		}
		if err := store.UpsertWeekly(ctx, saturday); err != nil {
			return nil, err
		}
		if err := store.UpsertWeekly(ctx, schedule.WeeklyEntry{DoctorID: doc.ID, DayOfWeek: time.Sunday}); err != nil {
			return nil, err
		}
	}

	logger.Info().Msg("doctors seeded")
	return ids, nil
}

func seedBlocks(ctx context.Context, store *schedule.PgStore, faker *gofakeit.Faker, doctorIDs []uuid.UUID, count int, logger zerolog.Logger) error {
	if len(doctorIDs) == 0 {
		return nil
	}
	logger.Info().Int("count", count).Msg("seeding blocked intervals")

	kinds := []schedule.BlockKind{schedule.BlockLeave, schedule.BlockProcedure, schedule.BlockOther}
	today := schedule.Day(time.Now())

	for range count {
		kind := kinds[faker.Number(0, len(kinds)-1)]
		block := schedule.Block{
			DoctorID: doctorIDs[faker.Number(0, len(doctorIDs)-1)],
			Date:     today.AddDate(0, 0, faker.Number(1, 14)),
			Kind:     kind,
		}

		switch kind {
		case schedule.BlockLeave:
			block.Start, block.End = schedule.NewClock(0, 0), schedule.NewClock(23, 59)
			block.Reason = "annual leave"
		default:
			block.Start = schedule.NewClock(faker.Number(9, 15), 0)
			block.End = block.Start.Add(60 * faker.Number(1, 2))
			block.Reason = blockReasons[faker.Number(0, len(blockReasons)-1)]
		}

		if _, err := store.AddBlock(ctx, block); err != nil {
			return err
		}
	}
	return nil
}

// seedPatients streams patients in with COPY in batches.
func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500
	columns := []string{"id", "name", "email", "created_at", "updated_at"}

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		now := time.Now().UTC()
		rows := make([][]any, 0, end-offset)
		for range end - offset {
			rows = append(rows, []any{uuid.New(), faker.Name(), faker.Email(), now, now})
		}

		if _, err := pool.CopyFrom(ctx, pgx.Identifier{"patients"}, columns, pgx.CopyFromRows(rows)); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}
	return nil
}
