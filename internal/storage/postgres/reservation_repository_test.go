package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/cimillas/ordswap/internal/domain"
	"github.com/cimillas/ordswap/internal/testutil"
)

func TestReservationRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewReservationRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("Reserve wins on a free inscription", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		won, err := repo.Reserve(ctx, domain.Reservation{
			InscriptionID:  "insc-1",
			CollectionSlug: "runes-of-old",
			BuyerAddress:   "bc1pbuyer1",
			ExpiresAt:      now.Add(30 * time.Second),
		}, now)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if !won {
			t.Fatal("expected the first reserve to win")
		}

		got, err := repo.Get(ctx, "insc-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got == nil || got.BuyerAddress != "bc1pbuyer1" {
			t.Fatalf("unexpected reservation: %+v", got)
		}
	})

	t.Run("Reserve loses while the row is active", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.InsertReservation(t, ctx, pool, domain.Reservation{
			InscriptionID:  "insc-1",
			CollectionSlug: "runes-of-old",
			BuyerAddress:   "bc1pbuyer1",
			ExpiresAt:      now.Add(30 * time.Second),
		})

		won, err := repo.Reserve(ctx, domain.Reservation{
			InscriptionID:  "insc-1",
			CollectionSlug: "runes-of-old",
			BuyerAddress:   "bc1pbuyer2",
			ExpiresAt:      now.Add(30 * time.Second),
		}, now)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if won {
			t.Fatal("expected the second reserve to lose while the first is active")
		}

		got, err := repo.Get(ctx, "insc-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.BuyerAddress != "bc1pbuyer1" {
			t.Fatalf("holder changed: %+v", got)
		}
	})

	t.Run("Reserve re-arms an expired row", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.InsertReservation(t, ctx, pool, domain.Reservation{
			InscriptionID:  "insc-1",
			CollectionSlug: "runes-of-old",
			BuyerAddress:   "bc1pbuyer1",
			ExpiresAt:      now.Add(-time.Second),
		})

		won, err := repo.Reserve(ctx, domain.Reservation{
			InscriptionID:  "insc-1",
			CollectionSlug: "runes-of-old",
			BuyerAddress:   "bc1pbuyer2",
			ExpiresAt:      now.Add(30 * time.Second),
		}, now)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if !won {
			t.Fatal("expected reserve to win over an expired row")
		}

		got, err := repo.Get(ctx, "insc-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.BuyerAddress != "bc1pbuyer2" {
			t.Fatalf("expected new holder, got %+v", got)
		}
	})

	t.Run("FindActiveByBuyer honors expiry", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.InsertReservation(t, ctx, pool, domain.Reservation{
			InscriptionID:  "insc-1",
			CollectionSlug: "runes-of-old",
			BuyerAddress:   "bc1pbuyer1",
			ExpiresAt:      now.Add(30 * time.Second),
		})
		testutil.InsertReservation(t, ctx, pool, domain.Reservation{
			InscriptionID:  "insc-2",
			CollectionSlug: "runes-of-old",
			BuyerAddress:   "bc1pbuyer2",
			ExpiresAt:      now.Add(-time.Second),
		})

		got, err := repo.FindActiveByBuyer(ctx, "runes-of-old", "bc1pbuyer1", now)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got == nil || got.InscriptionID != "insc-1" {
			t.Fatalf("unexpected reservation: %+v", got)
		}

		got, err = repo.FindActiveByBuyer(ctx, "runes-of-old", "bc1pbuyer2", now)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil for an expired reservation, got %+v", got)
		}
	})

	t.Run("ListRecent keeps the history window", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.InsertReservation(t, ctx, pool, domain.Reservation{
			InscriptionID:  "insc-1",
			CollectionSlug: "runes-of-old",
			BuyerAddress:   "bc1pbuyer1",
			ExpiresAt:      now.Add(30 * time.Second),
		})
		testutil.InsertReservation(t, ctx, pool, domain.Reservation{
			InscriptionID:  "insc-2",
			CollectionSlug: "runes-of-old",
			BuyerAddress:   "bc1pbuyer2",
			ExpiresAt:      now.Add(-time.Minute),
		})
		testutil.InsertReservation(t, ctx, pool, domain.Reservation{
			InscriptionID:  "insc-3",
			CollectionSlug: "runes-of-old",
			BuyerAddress:   "bc1pbuyer3",
			ExpiresAt:      now.Add(-10 * time.Minute),
		})

		recent, err := repo.ListRecent(ctx, "runes-of-old", now.Add(-5*time.Minute))
		if err != nil {
			t.Fatalf("list recent: %v", err)
		}
		if len(recent) != 2 {
			t.Fatalf("expected 2 recent reservations, got %d", len(recent))
		}
	})

	t.Run("Delete releases the row", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.InsertReservation(t, ctx, pool, domain.Reservation{
			InscriptionID:  "insc-1",
			CollectionSlug: "runes-of-old",
			BuyerAddress:   "bc1pbuyer1",
			ExpiresAt:      now.Add(30 * time.Second),
		})

		if err := repo.Delete(ctx, "insc-1"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		got, err := repo.Get(ctx, "insc-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil after delete, got %+v", got)
		}
	})
}
