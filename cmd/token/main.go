package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/service"
	"github.com/noah-isme/course-admin-api/pkg/config"
)

func main() {
	var (
		userID   string
		role     string
		email    string
		fullName string
		ttl      time.Duration
	)

	flag.StringVar(&userID, "user", "dev-admin", "User ID embedded in the token")
	flag.StringVar(&role, "role", string(models.RoleAdmin), "Role: SUPERADMIN, ADMIN, TEACHER or VIEWER")
	flag.StringVar(&email, "email", "", "Optional email claim")
	flag.StringVar(&fullName, "name", "", "Optional full name claim")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_EXPIRATION)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Env == config.EnvProduction {
		log.Fatal("refusing to mint development tokens in production")
	}

	userRole := models.UserRole(strings.ToUpper(strings.TrimSpace(role)))
	if _, ok := service.DefaultRolePermissions()[userRole]; !ok {
		log.Fatalf("unknown role %q", role)
	}

	tokens := service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		TTL:    cfg.JWT.Expiration,
	})
	signed, expiresAt, err := tokens.Issue(service.TokenRequest{
		UserID:   userID,
		Role:     userRole,
		Email:    email,
		FullName: fullName,
		TTL:      ttl,
	})
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "role=%s user=%s expires=%s\n", userRole, userID, expiresAt.Format(time.RFC3339))
	fmt.Println(signed)
}
