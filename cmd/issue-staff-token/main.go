package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/boxinggym/walkin-backend/pkg/jwt"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Issues a staff token for the admin app. Staff accounts live in the
// identity provider; this tool is for bootstrapping and local development.
func main() {
	var (
		idFlag   string
		name     string
		email    string
		roles    string
		validFor time.Duration
	)
	flag.StringVar(&idFlag, "id", "", "staff id (uuid); a new one is generated when empty")
	flag.StringVar(&name, "name", "", "display name recorded on cash payments")
	flag.StringVar(&email, "email", "", "staff email")
	flag.StringVar(&roles, "roles", jwt.RoleStaff, "comma-separated roles (staff, admin)")
	flag.DurationVar(&validFor, "valid-for", 12*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	secret := os.Getenv("STAFF_JWT_SECRET")
	if secret == "" {
		log.Fatal("STAFF_JWT_SECRET is not set")
	}
	issuer := os.Getenv("STAFF_JWT_ISSUER")
	if issuer == "" {
		issuer = "walkin-backend"
	}
	if name == "" && email == "" {
		log.Fatal("-name or -email is required")
	}

	staffID := uuid.New()
	if idFlag != "" {
		parsed, err := uuid.Parse(idFlag)
		if err != nil {
			log.Fatalf("invalid -id: %v", err)
		}
		staffID = parsed
	}

	var roleList []string
	for _, r := range strings.Split(roles, ",") {
		switch r = strings.TrimSpace(r); r {
		case jwt.RoleStaff, jwt.RoleAdmin:
			roleList = append(roleList, r)
		case "":
		default:
			log.Fatalf("unknown role %q", r)
		}
	}

	token, err := jwt.NewService(secret, issuer, validFor).GenerateStaffToken(staffID, name, email, roleList)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}

	fmt.Printf("staff_id: %s\n", staffID)
	fmt.Printf("roles:    %s\n", strings.Join(roleList, ","))
	fmt.Printf("expires:  %s\n", time.Now().Add(validFor).Format(time.RFC3339))
	fmt.Println()
	fmt.Println(token)
}
