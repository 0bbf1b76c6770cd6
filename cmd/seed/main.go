// seed inserts demo users with birthdays around today and a product catalogue
// into the local dev database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/ErlanBelekov/birthday-campaign/internal/infrastructure/postgres"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

type userSpec struct {
	name        string
	email       string
	offsetDays  int // birthday relative to today
	preferences []string
}

var users = []userSpec{
	// Inside the 7-day window: notified on the next run
	{"Ada Lovelace", "ada@seed.local", 0, []string{"kitchen", "books"}},
	{"Grace Hopper", "grace@seed.local", 3, []string{"garden"}},
	{"Alan Turing", "alan@seed.local", 6, nil},

	// Just outside the window
	{"Edsger Dijkstra", "edsger@seed.local", 7, []string{"books"}},
	{"Barbara Liskov", "barbara@seed.local", 30, []string{"sports"}},

	// Window already passed
	{"Ken Thompson", "ken@seed.local", -2, []string{"kitchen"}},
}

var products = []domain.Product{
	{Name: "Cast Iron Skillet", Category: "kitchen", Rating: 4.8},
	{Name: "Chef's Knife", Category: "kitchen", Rating: 4.6},
	{Name: "Heirloom Tomato Seeds", Category: "garden", Rating: 4.7},
	{Name: "Pruning Shears", Category: "garden", Rating: 4.2},
	{Name: "The Art of Computer Programming", Category: "books", Rating: 4.9},
	{Name: "Trail Running Shoes", Category: "sports", Rating: 4.4},
}

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL, 2)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	userRepo := postgres.NewUserRepository(pool)
	productRepo := postgres.NewProductRepository(pool)

	today := time.Now().UTC()
	var created []*domain.User
	for _, spec := range users {
		u, err := userRepo.Create(ctx, &domain.User{
			Name:        spec.name,
			Email:       spec.email,
			Birthdate:   birthdate(today, spec.offsetDays),
			Preferences: spec.preferences,
		})
		if err != nil {
			log.Fatalf("create user %s: %v", spec.email, err)
		}
		created = append(created, u)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		log.Fatalf("count products: %v", err)
	}
	if count == 0 {
		for i := range products {
			if err := productRepo.Create(ctx, &products[i]); err != nil {
				log.Fatalf("create product %s: %v", products[i].Name, err)
			}
		}
	}

	fmt.Println("Seed complete")
	fmt.Println()
	for _, u := range created {
		fmt.Printf("  %-18s %s  birthday %s  id %s\n", u.Name, u.Email, u.Birthdate.Format("Jan 02"), u.ID)
	}
	fmt.Printf("  Products: %d\n", max(count, len(products)))
	fmt.Println()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" || len(created) == 0 {
		return
	}
	token, err := signToken(secret, created[0].ID)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}

	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1: run the campaign once:")
	fmt.Println()
	fmt.Println("    RUN_ON_START=true go run ./cmd/scheduler")
	fmt.Println()
	fmt.Printf("  Step 2: list %s's codes:\n", created[0].Name)
	fmt.Println()
	fmt.Printf("    export JWT=%s\n", token)
	fmt.Println("    curl -s http://localhost:8080/discounts/available -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  Step 3: redeem it:")
	fmt.Println()
	fmt.Println("    curl -s -X POST http://localhost:8080/discounts/redeem \\")
	fmt.Println("      -H \"Authorization: Bearer $JWT\" -H 'Content-Type: application/json' \\")
	fmt.Println("      -d '{\"code\":\"BDAY-...\"}'")
}

// birthdate returns a date in 1990 whose month-day is today+offsetDays.
func birthdate(today time.Time, offsetDays int) time.Time {
	d := today.AddDate(0, 0, offsetDays)
	if d.Month() == time.February && d.Day() == 29 {
		d = d.AddDate(0, 0, -1)
	}
	return time.Date(1990, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func signToken(secret, userID string) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(24 * time.Hour).Unix(),
	})
	return t.SignedString([]byte(secret))
}
