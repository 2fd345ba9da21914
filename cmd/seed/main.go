package main

import (
	"context"
	"fmt"
	"log"

	"socialhub/internal/security"
	"socialhub/internal/shared/config"
	"socialhub/internal/shared/constants"
	"socialhub/internal/shared/database"
	"socialhub/internal/users"
	"socialhub/pkg/logger"
)

// demo accounts share this password
const seedPassword = "correct-horse-battery"

type Seeder struct {
	db   *database.DB
	repo users.Repository
}

func main() {
	fmt.Println("🌱 Starting Socialhub Database Seeder...")

	cfg := config.Load()

	db, err := database.InitDB(cfg, logger.New(cfg.LogLevel))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db, repo: users.NewRepository(db.GetPostgreSQL())}
	ctx := context.Background()

	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(ctx); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	fmt.Println("\n🌱 Seeding users...")
	if err := seeder.SeedUsers(ctx); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("\n🎉 Seeding completed! Log in with any user above and password:", seedPassword)
}

// CleanDatabase empties the users table and drops outstanding pending actions
func (s *Seeder) CleanDatabase(ctx context.Context) error {
	if err := s.db.PostgreSQL.WithContext(ctx).Exec("TRUNCATE TABLE users RESTART IDENTITY CASCADE").Error; err != nil {
		return fmt.Errorf("failed to truncate users: %w", err)
	}

	if s.db.Redis == nil {
		return nil
	}
	iter := s.db.Redis.Scan(ctx, 0, constants.CACHE_KEY_PENDING_ACTION+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.db.Redis.Del(ctx, iter.Val()).Err(); err != nil {
			log.Printf("Warning: failed to delete %s: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("Warning: failed to scan pending actions: %v", err)
	}
	return nil
}

// SeedUsers creates two active users and one disabled account
func (s *Seeder) SeedUsers(ctx context.Context) error {
	hash, err := security.HashPassword(seedPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	usersData := []struct {
		username  string
		firstName string
		lastName  string
		active    bool
	}{
		{"alice", "Alice", "Lindqvist", true},
		{"bob", "Bob", "Okafor", true},
		{"mallory", "Mallory", "Reyes", false},
	}

	for _, data := range usersData {
		user := &users.User{
			Username:     data.username,
			Email:        data.username + "@socialhub.local",
			PasswordHash: hash,
			FirstName:    data.firstName,
			LastName:     data.lastName,
			IsActive:     true,
		}
		if err := s.repo.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create user %s: %w", data.username, err)
		}
		// gorm skips zero values on insert, so the default:true column needs an explicit update
		if !data.active {
			if err := s.db.PostgreSQL.WithContext(ctx).Model(user).Update("is_active", false).Error; err != nil {
				return fmt.Errorf("failed to disable user %s: %w", data.username, err)
			}
		}
		fmt.Printf("    ✅ Created user: %s <%s> active=%t\n", user.Username, user.Email, data.active)
	}
	return nil
}
