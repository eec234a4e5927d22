package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campushours/booking-engine/internal/db"
)

// Seeds a batch of providers with a booking policy, weekday availability
// rules, and a handful of upcoming exceptions. Useful for manual testing
// and for cmd/simulate, which picks providers straight off the tables.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedProviders(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed providers: %v", err)
	}

	log.Println("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d providers", count)

	audiences := []string{"all", "all", "same_department", "same_course_roster", "approved_list"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		providerID := uuid.New()

		slotDuration := []int{15, 20, 30, 45, 60}[gofakeit.Number(0, 4)]
		buffer := []int{0, 5, 10, 15}[gofakeit.Number(0, 3)]
		notice := []int{0, 2, 12, 24, 48}[gofakeit.Number(0, 4)]
		// weighted toward open providers so the simulator has targets
		audience := audiences[gofakeit.Number(0, len(audiences)-1)]
		autoAccept := gofakeit.Bool()

		var maxPerDay *int
		if gofakeit.Bool() {
			n := gofakeit.Number(2, 8)
			maxPerDay = &n
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO booking_policies
				(provider_id, slot_duration_minutes, buffer_minutes, advance_notice_hours,
				 max_per_day, audience, auto_accept, allow_virtual, allow_in_person,
				 location_text, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true, true, $8, now())
		`, providerID, slotDuration, buffer, notice, maxPerDay, audience, autoAccept,
			gofakeit.Company()+" Building, Room "+gofakeit.DigitN(3))
		if err != nil {
			return err
		}

		if err := seedRules(ctx, tx, providerID); err != nil {
			return err
		}
		if err := seedExceptions(ctx, tx, providerID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("providers seeded")
	return nil
}

func seedRules(ctx context.Context, tx pgx.Tx, providerID uuid.UUID) error {
	// Monday through Friday, with a random morning or afternoon window and
	// sometimes both.
	for weekday := 1; weekday <= 5; weekday++ {
		windows := [][2]int{{9 * 60, 12 * 60}}
		if gofakeit.Bool() {
			windows = append(windows, [2]int{13 * 60, 17 * 60})
		}
		for _, w := range windows {
			_, err := tx.Exec(ctx, `
				INSERT INTO availability_rules
					(id, provider_id, weekday, start_minute, end_minute, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, now(), now())
			`, uuid.New(), providerID, weekday, w[0], w[1])
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func seedExceptions(ctx context.Context, tx pgx.Tx, providerID uuid.UUID) error {
	// A full-day blackout somewhere in the next two weeks for roughly a
	// third of providers.
	if gofakeit.Number(0, 2) != 0 {
		return nil
	}
	date := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, gofakeit.Number(1, 14))
	_, err := tx.Exec(ctx, `
		INSERT INTO availability_exceptions
			(id, provider_id, date, kind, start_minute, end_minute, created_at, updated_at)
		VALUES ($1, $2, $3, 'blackout_full_day', 0, 0, now(), now())
	`, uuid.New(), providerID, date)
	return err
}
