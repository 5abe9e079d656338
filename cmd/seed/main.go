package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logger"
)

var specialities = []string{
	"General physician",
	"Gynecologist",
	"Dermatologist",
	"Pediatricians",
	"Neurologist",
	"Gastroenterologist",
}

var degrees = []string{"MBBS", "MBBS, MD", "MBBS, MS", "MBBS, DNB"}

func main() {
	cfg, err := config.LoadStorage()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("apply schema", zap.Error(err))
	}

	doctors := envInt("SEED_DOCTORS", 20)
	patients := envInt("SEED_PATIENTS", 2000)

	if err := seedDoctors(context.Background(), log, pool, doctors); err != nil {
		log.Fatal("seed doctors", zap.Error(err))
	}
	if err := seedPatients(context.Background(), log, pool, patients); err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}

	log.Info("seed complete")
}

func seedDoctors(ctx context.Context, log *zap.Logger, pool *pgxpool.Pool, count int) error {
	log.Info("seeding doctors", zap.Int("count", count))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		name := "Dr. " + gofakeit.Name()
		fees := float64(gofakeit.Number(3, 15) * 100)

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, email, image, speciality, degree, experience, about, fees, available, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, now(), now())
		`,
			uuid.New(),
			name,
			fmt.Sprintf("doctor%03d.%s", i, gofakeit.Email()),
			gofakeit.URL(),
			specialities[gofakeit.Number(0, len(specialities)-1)],
			degrees[gofakeit.Number(0, len(degrees)-1)],
			fmt.Sprintf("%d Years", gofakeit.Number(1, 25)),
			gofakeit.Sentence(20),
			fees,
		)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, log *zap.Logger, pool *pgxpool.Pool, count int) error {
	log.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, image, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, now(), now())
			`,
				uuid.New(),
				gofakeit.Name(),
				fmt.Sprintf("p%06d.%s", i, gofakeit.Email()),
				gofakeit.URL(),
				gofakeit.Phone(),
			)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
