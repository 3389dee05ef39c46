package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/procurex/requisition-engine/internal/core/datamodel/organization"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		db, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: sqlDB.DB}), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to open gorm: %v", err)
		}

		if clearData {
			for _, table := range []string{
				"notification_delivery_jobs", "notifications", "requisition_comments",
				"requisition_items", "requisitions", "document_counters",
				"cross_tenant_access_logs", "expense_accounts", "projects",
				"memberships", "users", "organizations",
			} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		orgs := []struct {
			Name string
			Slug string
		}{
			{"Acme Manufacturing", "acme"},
			{"Globex Retail", "globex"},
		}

		orgIDs := map[string]int64{}
		for _, o := range orgs {
			var id int64
			row := db.Raw("SELECT id FROM organizations WHERE slug = ?", o.Slug).Row()
			if err := row.Scan(&id); err != nil {
				if err := db.Exec(
					"INSERT INTO organizations (name, slug, status, created_at, updated_at) VALUES (?, ?, ?, now(), now())",
					o.Name, o.Slug, organization.StatusActive,
				).Error; err != nil {
					log.Fatalf("failed to insert organization %s: %v", o.Slug, err)
				}
				if err := db.Raw("SELECT id FROM organizations WHERE slug = ?", o.Slug).Row().Scan(&id); err != nil {
					log.Fatalf("failed to look up organization %s: %v", o.Slug, err)
				}
				fmt.Println("Seeded organization:", o.Slug)
			}
			orgIDs[o.Slug] = id
		}

		hash, _ := bcrypt.GenerateFromPassword([]byte("password"), cfg.Security.BCryptCost)

		users := []struct {
			Email string
			Name  string
			Org   string
			Role  string
		}{
			{"sari@acme.test", "Sari Submitter", "acme", organization.RoleSubmitter},
			{"rudi@acme.test", "Rudi Reviewer", "acme", organization.RoleReviewer},
			{"anna@acme.test", "Anna Approver", "acme", organization.RoleApprover},
			{"staf@acme.test", "Staf Storeroom", "acme", organization.RoleStoreManager},
			{"root@acme.test", "Root Admin", "acme", organization.RoleSuperAdmin},
			{"gina@globex.test", "Gina Submitter", "globex", organization.RoleSubmitter},
			{"greg@globex.test", "Greg Reviewer", "globex", organization.RoleReviewer},
		}

		for _, u := range users {
			var uid int64
			row := db.Raw("SELECT id FROM users WHERE email = ?", u.Email).Row()
			if err := row.Scan(&uid); err != nil {
				if err := db.Exec(
					"INSERT INTO users (email, name, password_hash, is_active, created_at, updated_at) VALUES (?, ?, ?, true, now(), now())",
					u.Email, u.Name, string(hash),
				).Error; err != nil {
					log.Fatalf("failed to insert user %s: %v", u.Email, err)
				}
				if err := db.Raw("SELECT id FROM users WHERE email = ?", u.Email).Row().Scan(&uid); err != nil {
					log.Fatalf("failed to look up user %s: %v", u.Email, err)
				}
				fmt.Println("Seeded user:", u.Email)
			}

			var exists int
			row = db.Raw("SELECT 1 FROM memberships WHERE user_id = ? AND org_id = ?", uid, orgIDs[u.Org]).Row()
			if err := row.Scan(&exists); err != nil {
				if err := db.Exec(
					"INSERT INTO memberships (user_id, org_id, role, is_active, created_at, updated_at) VALUES (?, ?, ?, true, now(), now())",
					uid, orgIDs[u.Org], u.Role,
				).Error; err != nil {
					log.Fatalf("failed to insert membership for %s: %v", u.Email, err)
				}
			}
		}

		projects := []struct {
			Org    string
			Name   string
			Budget *int64
		}{
			{"acme", "Line Retooling", int64Ptr(10_000_00)},
			{"acme", "Facilities", nil},
			{"globex", "Store Refresh", int64Ptr(25_000_00)},
		}

		for _, p := range projects {
			var exists int
			row := db.Raw("SELECT 1 FROM projects WHERE org_id = ? AND name = ?", orgIDs[p.Org], p.Name).Row()
			if err := row.Scan(&exists); err != nil {
				if err := db.Exec(
					"INSERT INTO projects (org_id, name, budget, spent_amount, created_at, updated_at) VALUES (?, ?, ?, 0, now(), now())",
					orgIDs[p.Org], p.Name, p.Budget,
				).Error; err != nil {
					log.Fatalf("failed to insert project %s: %v", p.Name, err)
				}
				fmt.Println("Seeded project:", p.Name)
			}
		}

		fmt.Println("Seed data loaded successfully")
	},
}

func int64Ptr(v int64) *int64 { return &v }
