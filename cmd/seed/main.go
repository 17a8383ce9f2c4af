package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/tablebill/api/internal/config"
	"github.com/tablebill/api/internal/database"
	"github.com/tablebill/api/internal/enum"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg := config.Load()

	// CLI flags
	email := flag.String("email", "", "Owner email address")
	password := flag.String("password", "", "Owner password")
	name := flag.String("name", "", "Owner full name")
	business := flag.String("business", "", "Business name")
	vatRate := flag.Float64("vat-rate", cfg.DefaultVATRate, "Business VAT rate as a fraction, e.g. 0.075")
	flag.Parse()

	// Fall back to environment variables
	if *email == "" {
		*email = os.Getenv("SEED_EMAIL")
	}
	if *password == "" {
		*password = os.Getenv("SEED_PASSWORD")
	}
	if *name == "" {
		*name = os.Getenv("SEED_NAME")
	}
	if *business == "" {
		*business = os.Getenv("SEED_BUSINESS")
	}

	// Fall back to defaults
	if *email == "" {
		*email = "owner@tablebill.local"
	}
	if *password == "" {
		*password = "password123"
		log.Println("WARNING: Using default password 'password123'. Change immediately in production!")
	}
	if *name == "" {
		*name = "Owner"
	}
	if *business == "" {
		*business = "Demo Restaurant"
	}
	if *vatRate < 0 || *vatRate >= 1 {
		log.Fatalf("vat-rate must be in [0, 1), got %v", *vatRate)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	// Seed in a transaction (atomicity: both business + user or neither)
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	q := database.New(pool).WithTx(tx)

	businessID, err := seedBusiness(ctx, tx, q, *business, *vatRate)
	if err != nil {
		log.Fatalf("Failed to seed business: %v", err)
	}

	userID, err := seedOwner(ctx, q, businessID, *email, *password, *name)
	if err != nil {
		log.Fatalf("Failed to seed owner: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}

	log.Println("Seed completed successfully")
	log.Printf("Business ID: %s", businessID)
	log.Printf("Owner ID: %s", userID)
}

// seedBusiness creates the business if an active one with that name doesn't exist.
func seedBusiness(ctx context.Context, tx pgx.Tx, q *database.Queries, name string, vatRate float64) (uuid.UUID, error) {
	var existingID uuid.UUID
	checkSQL := `SELECT id FROM businesses WHERE name = $1 AND is_active = true LIMIT 1`
	err := tx.QueryRow(ctx, checkSQL, name).Scan(&existingID)
	if err == nil {
		log.Printf("Business '%s' already exists (ID: %s), skipping", name, existingID)
		return existingID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("check business: %w", err)
	}

	var rate pgtype.Numeric
	if err := rate.Scan(decimal.NewFromFloat(vatRate).StringFixed(4)); err != nil {
		return uuid.Nil, fmt.Errorf("vat rate: %w", err)
	}

	b, err := q.CreateBusiness(ctx, database.CreateBusinessParams{
		Name:     name,
		VatRate:  rate,
		Currency: "NGN",
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert business: %w", err)
	}

	log.Printf("Created business '%s' (ID: %s, VAT %s)", name, b.ID, decimal.NewFromFloat(vatRate).StringFixed(4))
	return b.ID, nil
}

// seedOwner creates the owner user if it doesn't exist.
func seedOwner(ctx context.Context, q *database.Queries, businessID uuid.UUID, email, password, fullName string) (uuid.UUID, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := q.GetUserByEmail(ctx, email)
	if err == nil {
		log.Printf("User '%s' already exists (ID: %s), skipping", email, existing.ID)
		return existing.ID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("check user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := q.CreateUser(ctx, database.CreateUserParams{
		BusinessID:     businessID,
		Email:          email,
		HashedPassword: string(hashed),
		FullName:       fullName,
		Role:           enum.UserRoleOwner,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert user: %w", err)
	}

	log.Printf("Created owner user '%s' (ID: %s)", email, u.ID)
	return u.ID, nil
}
