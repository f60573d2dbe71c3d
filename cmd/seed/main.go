// Command main runs the database seeder for Piazza.
package main

import (
	"context"
	"flag"
	"log"

	"piazza/internal/bootstrap"
	"piazza/internal/config"
	"piazza/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	numPosts := flag.Int("posts", 100, "Number of posts to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	expiredRatio := flag.Float64("expired", 0.3, "Share of posts created already expired (negative for none)")
	randSeed := flag.Int64("seed", 0, "Random seed for reproducible data (0 picks one)")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d users, %d posts, clean=%v\n", *numUsers, *numPosts, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ApplySchema: true})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = rt.Close(ctx) }()

	s := seed.ForRuntime(rt, seed.Options{
		NumUsers:     *numUsers,
		NumPosts:     *numPosts,
		ShouldClean:  *shouldClean,
		ExpiredRatio: *expiredRatio,
		RandSeed:     *randSeed,
	})
	if _, err := s.Run(ctx); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! Your database is now populated with test data.")
	log.Printf("📧 All test users have the password: %s", seed.DefaultPassword)
}
