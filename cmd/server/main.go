// Server runs the admin HTTP API: session auth, step-up issuance, the
// dual-approval policy gate, and the audit pipeline.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adminpolicyhandler "exam-announce-admin/backend/internal/adminpolicy/handler"
	adminpolicyrepo "exam-announce-admin/backend/internal/adminpolicy/repository"
	announcementhandler "exam-announce-admin/backend/internal/announcement/handler"
	announcementrepo "exam-announce-admin/backend/internal/announcement/repository"
	announcementservice "exam-announce-admin/backend/internal/announcement/service"
	approvalhandler "exam-announce-admin/backend/internal/approval/handler"
	approvalrepo "exam-announce-admin/backend/internal/approval/repository"
	approvalservice "exam-announce-admin/backend/internal/approval/service"
	"exam-announce-admin/backend/internal/audit"
	audithandler "exam-announce-admin/backend/internal/audit/handler"
	auditproducer "exam-announce-admin/backend/internal/audit/producer"
	auditrepo "exam-announce-admin/backend/internal/audit/repository"
	"exam-announce-admin/backend/internal/config"
	"exam-announce-admin/backend/internal/db"
	"exam-announce-admin/backend/internal/devotp"
	devotphandler "exam-announce-admin/backend/internal/devotp/handler"
	healthhandler "exam-announce-admin/backend/internal/health/handler"
	identityhandler "exam-announce-admin/backend/internal/identity/handler"
	identityservice "exam-announce-admin/backend/internal/identity/service"
	mfarepo "exam-announce-admin/backend/internal/mfa/repository"
	"exam-announce-admin/backend/internal/mfa/sms"
	"exam-announce-admin/backend/internal/policygate"
	"exam-announce-admin/backend/internal/policygate/engine"
	"exam-announce-admin/backend/internal/security"
	"exam-announce-admin/backend/internal/server"
	"exam-announce-admin/backend/internal/server/middleware"
	sessionhandler "exam-announce-admin/backend/internal/session/handler"
	sessionrepo "exam-announce-admin/backend/internal/session/repository"
	stepuprepo "exam-announce-admin/backend/internal/stepup/repository"
	stepupservice "exam-announce-admin/backend/internal/stepup/service"
	telemetryotel "exam-announce-admin/backend/internal/telemetry/otel"
	userrepo "exam-announce-admin/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "examadmin-server", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("JWT_PRIVATE_KEY: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("JWT_PUBLIC_KEY: %v", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.StepUpTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	users := userrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	challenges := mfarepo.NewPostgresRepository(conn)
	grants := stepuprepo.NewPostgresRepository(conn)
	approvals := approvalrepo.NewPostgresRepository(conn)
	announcements := announcementrepo.NewPostgresRepository(conn)
	auditLogs := auditrepo.NewPostgresRepository(conn)
	policyConfig := adminpolicyrepo.NewPostgresRepository(conn)

	// OTP delivery: real SMS in normal mode, in-memory store in dev OTP mode.
	var smsSender *sms.SMSLocalClient
	var devStore *devotp.MemoryStore
	if cfg.OTPReturnToClient {
		devStore = devotp.NewMemoryStore()
		log.Println("dev OTP mode enabled: OTPs served on GET /dev/mfa/otp, no SMS sent")
	} else if cfg.SMSLocalAPIKey != "" {
		smsSender = sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	} else {
		log.Println("warning: no SMS_LOCAL_API_KEY and dev OTP mode off; 2FA logins cannot receive codes")
	}

	kafkaProducer, err := auditproducer.NewKafkaProducer(cfg.AuditKafkaBrokersList(), cfg.AuditKafkaTopic)
	if err != nil {
		log.Fatalf("audit kafka: %v", err)
	}
	var emitters []audit.EventEmitter
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		defer kafkaProducer.Close()
	}
	emitters = append(emitters, telemetryotel.NewAuditEmitter(providers.LoggerProvider))
	auditor := audit.NewLogger(auditLogs, middleware.ClientIPFromContext, emitters...)

	var stepupSMS stepupservice.SMSSender
	var stepupDev stepupservice.DevOTPStore
	var identitySMS identityservice.SMSSender
	var identityDev identityservice.DevOTPStore
	if smsSender != nil {
		stepupSMS = smsSender
		identitySMS = smsSender
	}
	if devStore != nil {
		stepupDev = devStore
		identityDev = devStore
	}

	stepupSvc := stepupservice.NewService(users, challenges, grants, hasher, tokens, stepupSMS, stepupDev, 0, cfg.StepUpSingleUse)
	authSvc := identityservice.NewAuthService(users, sessions, challenges, stepupSvc, hasher, identitySMS, identityDev, auditor, cfg.SessionTTL(), 0)
	approvalSvc := approvalservice.NewService(approvals, auditor, cfg.ApprovalTTL())
	announcementSvc := announcementservice.NewService(announcements)
	evaluator := engine.NewOPAEvaluator()
	gate := policygate.New(stepupSvc, policyConfig, evaluator, approvalSvc)

	secureCookies := cfg.Env == "production"
	handlers := server.Handlers{
		Auth:          identityhandler.NewHandler(authSvc, stepupSvc, secureCookies, cfg.SessionTTL()),
		Announcements: announcementhandler.NewHandler(announcementSvc, gate, auditor),
		Approvals:     approvalhandler.NewHandler(approvalSvc),
		Sessions:      sessionhandler.NewHandler(sessions, stepupSvc, auditor),
		PolicyConfig:  adminpolicyhandler.NewHandler(policyConfig, auditor),
		Audit:         audithandler.NewHandler(auditLogs),
		Health:        healthhandler.NewHandler(conn, evaluator),
	}
	if devStore != nil {
		handlers.DevOTP = devotphandler.NewHandler(devStore)
	}

	router := server.NewRouter(authSvc, handlers, providers.LoggerProvider)
	srv := server.New(cfg.HTTPAddr, router)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if interval := cfg.ApprovalSweepInterval(); interval > 0 {
		go approvalSvc.RunSweeper(runCtx, interval)
	}

	go func() {
		log.Printf("admin HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	// Let in-flight async audit emits finish before the exporters close.
	time.Sleep(audit.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("server stopped")
}
