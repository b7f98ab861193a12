// seed inserts development sample data for local testing. Run via ./scripts/seed.sh.
// Idempotent: skips inserts if the dev superadmin (dev-admin@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	adminpolicydomain "exam-announce-admin/backend/internal/adminpolicy/domain"
	adminpolicyrepo "exam-announce-admin/backend/internal/adminpolicy/repository"
	announcementdomain "exam-announce-admin/backend/internal/announcement/domain"
	announcementrepo "exam-announce-admin/backend/internal/announcement/repository"
	announcementservice "exam-announce-admin/backend/internal/announcement/service"
	"exam-announce-admin/backend/internal/config"
	"exam-announce-admin/backend/internal/db"
	"exam-announce-admin/backend/internal/mfa"
	"exam-announce-admin/backend/internal/security"
	userdomain "exam-announce-admin/backend/internal/user/domain"
	userrepo "exam-announce-admin/backend/internal/user/repository"
)

const (
	adminEmail    = "dev-admin@example.com"
	editorEmail   = "dev-editor@example.com"
	reviewerEmail = "dev-reviewer@example.com"
	devPassword   = "password123"
	reviewerPhone = "9999999999"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := userrepo.NewPostgresRepository(conn)
	if existing, err := users.GetByEmail(ctx, adminEmail); err != nil {
		log.Fatalf("check existing: %v", err)
	} else if existing != nil {
		log.Printf("seed: %s already exists, nothing to do", adminEmail)
		return
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	admin := &userdomain.User{
		ID:           uuid.NewString(),
		Email:        adminEmail,
		Name:         "Dev Superadmin",
		Role:         userdomain.RoleSuperAdmin,
		PasswordHash: passwordHash,
	}
	editor := &userdomain.User{
		ID:           uuid.NewString(),
		Email:        editorEmail,
		Name:         "Dev Editor",
		Role:         userdomain.RoleEditor,
		PasswordHash: passwordHash,
	}
	reviewer := &userdomain.User{
		ID:               uuid.NewString(),
		Email:            reviewerEmail,
		Name:             "Dev Reviewer",
		Role:             userdomain.RoleReviewer,
		PasswordHash:     passwordHash,
		Phone:            reviewerPhone,
		TwoFactorEnabled: true,
	}
	for _, u := range []*userdomain.User{admin, editor, reviewer} {
		if err := u.Validate(); err != nil {
			log.Fatalf("seed user %s: %v", u.Email, err)
		}
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("create user %s: %v", u.Email, err)
		}
	}

	backupCodes, err := mfa.GenerateBackupCodes(8)
	if err != nil {
		log.Fatalf("backup codes: %v", err)
	}
	ids := make([]string, len(backupCodes))
	hashes := make([]string, len(backupCodes))
	for i, code := range backupCodes {
		ids[i] = uuid.NewString()
		hashes[i] = mfa.HashCode(code)
	}
	if err := users.CreateBackupCodes(ctx, reviewer.ID, ids, hashes); err != nil {
		log.Fatalf("create backup codes: %v", err)
	}

	policyConfig := adminpolicyrepo.NewPostgresRepository(conn)
	defaultGuard := adminpolicydomain.DefaultAdminGuard()
	if err := policyConfig.Upsert(ctx, &adminpolicydomain.AdminPolicyConfig{
		AdminGuard: &defaultGuard,
	}); err != nil {
		log.Fatalf("policy config: %v", err)
	}

	announcements := announcementservice.NewService(announcementrepo.NewPostgresRepository(conn))
	title := "UPSC Civil Services 2026 Notification"
	body := "Draft notification for the 2026 civil services examination."
	examDate := time.Now().UTC().AddDate(0, 6, 0).Truncate(24 * time.Hour)
	if _, err := announcements.Create(ctx, editor.ID, announcementdomain.Mutation{
		Title:    &title,
		Body:     &body,
		ExamDate: &examDate,
	}); err != nil {
		log.Fatalf("announcement: %v", err)
	}

	fmt.Println("seed: done")
	fmt.Printf("  superadmin: %s / %s\n", adminEmail, devPassword)
	fmt.Printf("  editor:     %s / %s\n", editorEmail, devPassword)
	fmt.Printf("  reviewer:   %s / %s (2FA enrolled, phone %s)\n", reviewerEmail, devPassword, reviewerPhone)
	fmt.Println("  reviewer backup codes:")
	for _, code := range backupCodes {
		fmt.Printf("    %s\n", code)
	}
}
