package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/logging"
	"github.com/hackgods/doctor-appointment-scheduling/internal/slots"
)

type doctorSeed struct {
	name, specialty, email string
}

// Stable doctors that demos and the simulator can address by name.
var fixedDoctors = []doctorSeed{
	{"Dr. Ahuja", "Cardiology", "dr.ahuja@example.com"},
	{"Dr. Mehta", "Dermatology", "dr.mehta@example.com"},
	{"Dr. Iyer", "General Practice", "dr.iyer@example.com"},
}

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

func main() {
	doctors := flag.Int("doctors", 20, "number of random doctors to add")
	patients := flag.Int("patients", 2000, "number of random patients to add")
	historyDays := flag.Int("history-days", 14, "days of completed appointments to add for the fixed doctors")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.DefaultPoolOptions("seed"))
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())
	ctx = context.Background()

	doctorIDs, err := seedDoctors(ctx, logger, pool, *doctors)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	patientIDs, err := seedPatients(ctx, logger, pool, *patients)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedHistory(ctx, logger, pool, cfg.Location(), doctorIDs, patientIDs, *historyDays); err != nil {
		logger.Fatal().Err(err).Msg("seed history")
	}

	logger.Info().Msg("seed complete")
}

// seedDoctors inserts the fixed doctors plus count random ones and returns
// the ids of the fixed doctors.
func seedDoctors(ctx context.Context, logger zerolog.Logger, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	logger.Info().Int("random", count).Int("fixed", len(fixedDoctors)).Msg("seeding doctors")

	all := append([]doctorSeed{}, fixedDoctors...)
	for i := 0; i < count; i++ {
		first, last := gofakeit.FirstName(), gofakeit.LastName()
		all = append(all, doctorSeed{
			name:      "Dr. " + first + " " + last,
			specialty: specialties[gofakeit.Number(0, len(specialties)-1)],
			email:     fmt.Sprintf("%s.%s.%d@clinic.example.com", strings.ToLower(first), strings.ToLower(last), i),
		})
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for _, d := range all {
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			ON CONFLICT (email) DO NOTHING
		`, uuid.New(), d.name, d.specialty, d.email)
		if err != nil {
			return nil, err
		}
	}

	// Re-read so reruns pick up the rows that already existed.
	fixed := make([]uuid.UUID, 0, len(fixedDoctors))
	for _, d := range fixedDoctors {
		var id uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM doctors WHERE email = $1`, d.email).Scan(&id); err != nil {
			return nil, err
		}
		fixed = append(fixed, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info().Msg("doctors seeded")
	return fixed, nil
}

func seedPatients(ctx context.Context, logger zerolog.Logger, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500
	ids := make([]uuid.UUID, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			phone := gofakeit.Phone()

			tag, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
				ON CONFLICT (email) DO NOTHING
			`, id, gofakeit.Name(), gofakeit.Email(), &phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			if tag.RowsAffected() == 1 {
				ids = append(ids, id)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return ids, nil
}

// seedHistory gives the fixed doctors a few completed or cancelled visits on
// past days so that summary reports have something to show.
func seedHistory(ctx context.Context, logger zerolog.Logger, pool *pgxpool.Pool, loc *time.Location, doctorIDs, patientIDs []uuid.UUID, days int) error {
	if len(patientIDs) == 0 || days <= 0 {
		return nil
	}
	logger.Info().Int("days", days).Msg("seeding appointment history")

	grid := slots.All()
	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, doctorID := range doctorIDs {
		for d := 1; d <= days; d++ {
			date := today.AddDate(0, 0, -d)
			for _, slot := range grid {
				if !gofakeit.Bool() {
					continue
				}
				status := "completed"
				if gofakeit.Number(1, 10) == 1 {
					status = "cancelled"
				}
				patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]

				_, err := tx.Exec(ctx, `
					INSERT INTO appointments (id, doctor_id, patient_id, appointment_date, time_slot, status, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, now(), now())
				`, uuid.New(), doctorID, patientID, date, slot, status)
				if err != nil {
					return err
				}
				inserted++
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Int("appointments", inserted).Msg("history seeded")
	return nil
}
