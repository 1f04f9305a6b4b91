package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/r0o773rm1n41/dme-backend/internal/config"
	"github.com/r0o773rm1n41/dme-backend/internal/database"
	"github.com/r0o773rm1n41/dme-backend/internal/logger"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/r0o773rm1n41/dme-backend/internal/repository"
	"github.com/r0o773rm1n41/dme-backend/internal/service"
	"golang.org/x/crypto/bcrypt"
)

// seed creates a single day's quiz (a fresh question bank plus the Quiz row
// that references it) and, optionally, the first admin account — entirely
// from flags and environment variables. It replaces the teacher's
// interactive create-admin/seed-students commands: nothing in this spec's
// operator workflow benefits from a terminal password prompt, and a
// non-interactive seed is what a deploy pipeline or test fixture actually
// needs.
func main() {
	var (
		date          string
		classGradeTag string
		adminName     string
		adminEmail    string
		adminPassword string
		roleID        int
	)
	flag.StringVar(&date, "date", "", "civil date to seed a quiz for, YYYY-MM-DD (default: today in QUIZ_ZONE)")
	flag.StringVar(&classGradeTag, "class-grade-tag", "all", "class/grade tag the quiz is scoped to")
	flag.StringVar(&adminName, "admin-name", "", "if set with -admin-email, also creates an admin account")
	flag.StringVar(&adminEmail, "admin-email", os.Getenv("SEED_ADMIN_EMAIL"), "admin account email")
	flag.StringVar(&adminPassword, "admin-password", os.Getenv("SEED_ADMIN_PASSWORD"), "admin account password")
	flag.IntVar(&roleID, "admin-role-id", 1, "admin account role id")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	if date == "" {
		loc, err := time.LoadLocation(cfg.QuizZone)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load QUIZ_ZONE")
		}
		date = time.Now().In(loc).Format("2006-01-02")
	}

	questionRepo := repository.NewQuestionRepository(pool)
	quizRepo := repository.NewQuizRepository(pool)

	fmt.Printf("=== Seeding quiz for %s (%s) ===\n", date, classGradeTag)

	if existing, err := quizRepo.GetByDate(ctx, date); err == nil {
		fmt.Printf("Quiz for %s already exists in state %s, skipping question/quiz seed.\n", date, existing.State)
	} else {
		questionIDs := make([]string, 0, model.TotalSlots)
		for i := 0; i < model.TotalSlots; i++ {
			req := model.AddQuestionRequest{
				Text: fmt.Sprintf("Seeded question #%d for %s", i+1, date),
				Options: [4]string{
					fmt.Sprintf("Option A for Q%d", i+1),
					fmt.Sprintf("Option B for Q%d", i+1),
					fmt.Sprintf("Option C for Q%d", i+1),
					fmt.Sprintf("Option D for Q%d", i+1),
				},
				CorrectIndex: i % 4,
			}
			q, err := questionRepo.Create(ctx, req)
			if err != nil {
				log.Fatal().Err(err).Int("index", i).Msg("failed to seed question")
			}
			questionIDs = append(questionIDs, q.ID)
		}

		if _, err := quizRepo.Create(ctx, date, classGradeTag, questionIDs); err != nil {
			log.Fatal().Err(err).Msg("failed to create quiz")
		}
		fmt.Printf("Seeded %d questions and a DRAFT quiz for %s.\n", model.TotalSlots, date)
	}

	if adminName == "" || adminEmail == "" || adminPassword == "" {
		fmt.Println("Skipping admin seed: -admin-name, -admin-email and -admin-password (or SEED_ADMIN_EMAIL/SEED_ADMIN_PASSWORD) must all be set.")
		return
	}

	if len(adminPassword) < 6 {
		log.Fatal().Msg("admin password must be at least 6 characters")
	}

	adminRepo := repository.NewAdminRepository(pool)
	roleRepo := repository.NewRoleRepository(pool)
	adminService := service.NewAdminService(adminRepo, roleRepo)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(adminPassword), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to hash admin password")
	}

	newAdmin := &model.Admin{
		Email:        adminEmail,
		Name:         adminName,
		PasswordHash: string(hashedPassword),
		RoleID:       roleID,
	}
	if err := adminService.Create(ctx, newAdmin); err != nil {
		log.Fatal().Err(err).Msg("failed to create admin")
	}
	fmt.Printf("Seeded admin '%s' (%s) with ID %d.\n", newAdmin.Name, newAdmin.Email, newAdmin.ID)
}
