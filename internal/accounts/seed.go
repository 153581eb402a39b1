package accounts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/kozaktomas/school-attendance/internal/config"
	"github.com/kozaktomas/school-attendance/internal/database"
)

// Seed creates the government admin, the seed school and its admin from
// environment settings. It is idempotent: existing rows are kept and only
// passwords given explicitly are updated.
func (s *Service) Seed(ctx context.Context, cfg config.SeedConfig) error {
	var errs []error

	if cfg.GovAdminEmail != "" {
		if err := s.seedUser(ctx, database.RoleGovAdmin, cfg.GovAdminEmail, cfg.GovAdminName, cfg.GovAdminPassword, ""); err != nil {
			errs = append(errs, fmt.Errorf("seed government admin: %w", err))
		}
	}

	schoolID := ""
	if name := strings.TrimSpace(cfg.SchoolName); name != "" {
		school, err := s.schools.GetByName(ctx, name)
		switch {
		case err == nil:
			schoolID = school.ID
		case errors.Is(err, database.ErrNotFound):
			school = &database.School{Name: name}
			if err := s.schools.Create(ctx, school); err != nil {
				errs = append(errs, fmt.Errorf("seed school: %w", err))
				break
			}
			schoolID = school.ID
			log.Printf("seed: created school %s", name)
		default:
			errs = append(errs, fmt.Errorf("lookup seed school: %w", err))
		}
	}

	if cfg.SchoolAdminEmail != "" && schoolID != "" {
		if err := s.seedUser(ctx, database.RoleSchoolAdmin, cfg.SchoolAdminEmail, cfg.SchoolAdminName, cfg.SchoolAdminPassword, schoolID); err != nil {
			errs = append(errs, fmt.Errorf("seed school admin: %w", err))
		}
	}

	return errors.Join(errs...)
}

// seedUser creates the user if missing, or refreshes the password of an
// existing user with the same role when one is configured.
func (s *Service) seedUser(ctx context.Context, role database.Role, email, name, password, schoolID string) error {
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}

	if existing != nil {
		if password == "" || existing.Role != role {
			return nil
		}
		hash, err := HashPassword(password)
		if err != nil {
			return err
		}
		if err := s.users.UpdatePassword(ctx, existing.ID, hash); err != nil {
			return err
		}
		log.Printf("seed: updated %s password from environment", role)
		return nil
	}

	temp := password
	if temp == "" {
		if temp, err = TempPassword(); err != nil {
			return err
		}
	}
	hash, err := HashPassword(temp)
	if err != nil {
		return err
	}

	u := &database.User{
		FullName:     name,
		Email:        email,
		Role:         role,
		SchoolID:     schoolID,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return err
	}
	s.notifyCredentials(ctx, u, temp)
	log.Printf("seed: created %s %s", role, u.Email)
	return nil
}
