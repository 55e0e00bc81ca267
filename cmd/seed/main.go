package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"agrirent/internal/config"
	"agrirent/internal/database"
	"agrirent/internal/domain"
	"agrirent/internal/lock"
	"agrirent/internal/logger"
	"agrirent/internal/modules/booking"
	"agrirent/internal/modules/groupbooking"
	jwtsvc "agrirent/internal/pkg/jwt"
	"agrirent/internal/repository"
)

// seed fills a development database with equipment, a booking and an open
// group booking, and prints tokens for the demo users.
func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if cfg.IsProdLike() {
		logrus.Fatal("refusing to seed a production database")
	}
	log := logger.New(cfg.Log)

	db, err := database.Connect(cfg.Database.URL, log)
	if err != nil {
		log.WithError(err).Fatal("DB connection failed")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("AutoMigrate failed")
	}

	ctx := context.Background()
	store := repository.NewStore(db)
	guard := lock.NewGuard(store, lock.NewKeyedMutex(), 5*time.Second)

	var (
		admin   = domain.Actor{UserID: 1, Role: domain.RoleAdmin}
		owners  = []domain.Actor{{UserID: 10, Role: domain.RoleOwner}, {UserID: 11, Role: domain.RoleOwner}}
		farmers = []domain.Actor{{UserID: 20, Role: domain.RoleFarmer}, {UserID: 21, Role: domain.RoleFarmer}, {UserID: 22, Role: domain.RoleFarmer}}
	)

	// ================== EQUIPMENT ==================
	log.Info("creating equipment")
	catalog := []struct {
		name  string
		price int64
	}{
		{"Mahindra 575 DI tractor", 250000},
		{"Combine harvester", 900000},
		{"Rotavator 7ft", 120000},
		{"Seed drill 9 row", 80000},
	}
	equipment := make([]*domain.Equipment, 0, len(catalog))
	for i, item := range catalog {
		eq := &domain.Equipment{
			OwnerID:     owners[i%len(owners)].UserID,
			Name:        item.name,
			PricePerDay: item.price,
			IsAvailable: true,
		}
		if err := store.Equipment.Create(ctx, eq); err != nil {
			log.WithError(err).Fatal("create equipment failed")
		}
		equipment = append(equipment, eq)
	}

	// ================== BOOKINGS ==================
	log.Info("creating bookings")
	start := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 3)
	bookings := booking.NewService(store, guard, log)
	b, err := bookings.CreateBooking(ctx, farmers[0], booking.CreateBookingRequest{
		EquipmentID: equipment[0].ID,
		StartDate:   start,
		EndDate:     start.AddDate(0, 0, 2),
		Notes:       "Ploughing the east field",
	})
	if err != nil {
		log.WithError(err).Fatal("create booking failed")
	}
	if _, err := bookings.SetBookingStatus(ctx, b.ID, owners[0], domain.BookingConfirmed); err != nil {
		log.WithError(err).Fatal("confirm booking failed")
	}

	groups := groupbooking.NewCoordinator(store, guard, log)
	view, err := groups.Create(ctx, farmers[1], groupbooking.CreateGroupBookingRequest{
		EquipmentID:     equipment[1].ID,
		StartDate:       start,
		EndDate:         start.AddDate(0, 0, 1),
		MinParticipants: 2,
		MaxParticipants: 3,
		Notes:           "Shared harvest, neighbouring plots",
	})
	if err != nil {
		log.WithError(err).Fatal("create group booking failed")
	}
	if _, err := groups.Join(ctx, view.Group.ID, farmers[2], ""); err != nil {
		log.WithError(err).Fatal("join group booking failed")
	}

	// ================== TOKENS ==================
	tokens := jwtsvc.New(cfg.JWT.Secret, 30*24*time.Hour)
	for _, actor := range append(append([]domain.Actor{admin}, owners...), farmers...) {
		token, err := tokens.GenerateToken(actor.UserID, actor.Role)
		if err != nil {
			log.WithError(err).Fatal("issue token failed")
		}
		fmt.Printf("%-6s user_id=%-3d %s\n", actor.Role, actor.UserID, token)
	}

	log.Info("seed completed")
}
