package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/school-attendance/internal/accounts"
	"github.com/kozaktomas/school-attendance/internal/attendance"
	"github.com/kozaktomas/school-attendance/internal/config"
	"github.com/kozaktomas/school-attendance/internal/database"
	"github.com/kozaktomas/school-attendance/internal/database/postgres"
	"github.com/kozaktomas/school-attendance/internal/embedding"
	"github.com/kozaktomas/school-attendance/internal/notify"
	"github.com/kozaktomas/school-attendance/internal/roster"
	"github.com/kozaktomas/school-attendance/internal/web"
)

// cliActor acts on behalf of the operator running maintenance commands.
var cliActor = &database.User{ID: "cli", FullName: "Command line", Role: database.RoleGovAdmin}

// app holds the repositories and services shared by the commands.
type app struct {
	cfg      *config.Config
	schools  database.SchoolWriter
	sections database.SectionWriter
	students database.StudentWriter
	users    database.UserWriter
	records  database.AttendanceWriter
	index    *database.FaceIndex
	provider embedding.Provider

	accounts   *accounts.Service
	roster     *roster.Service
	attendance *attendance.Service
}

// connectDatabase opens PostgreSQL, applies pending migrations and registers the backend.
func connectDatabase(cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return nil
}

// newApp resolves the registered repositories. The embedding provider is
// only created when withProvider is set.
func newApp(ctx context.Context, cfg *config.Config, withProvider bool) (*app, error) {
	a := &app{cfg: cfg}
	var err error
	if a.schools, err = database.GetSchoolWriter(ctx); err != nil {
		return nil, err
	}
	if a.sections, err = database.GetSectionWriter(ctx); err != nil {
		return nil, err
	}
	if a.students, err = database.GetStudentWriter(ctx); err != nil {
		return nil, err
	}
	if a.users, err = database.GetUserWriter(ctx); err != nil {
		return nil, err
	}
	if a.records, err = database.GetAttendanceWriter(ctx); err != nil {
		return nil, err
	}

	var enroller *roster.Enroller
	if withProvider {
		if a.provider, err = embedding.New(cfg.Embedding); err != nil {
			return nil, fmt.Errorf("failed to create embedding provider: %w", err)
		}
		a.index = loadFaceIndex(ctx, a.students)
		enroller = roster.NewEnroller(a.provider, a.index, roster.EnrollOptionsFromConfig(cfg))
	}

	a.accounts = accounts.NewService(a.users, a.schools, a.sections, notify.NewBrevoClient(cfg.Brevo), cfg.School)
	a.roster = roster.NewService(a.schools, a.sections, a.students, enroller)
	a.attendance = attendance.NewService(a.sections, a.students, a.records, a.provider, attendance.OptionsFromConfig(cfg))
	return a, nil
}

// loadFaceIndex builds the in-memory duplicate index from every stored embedding.
// A failure leaves an empty index so enrollment keeps working without warnings.
func loadFaceIndex(ctx context.Context, students database.StudentReader) *database.FaceIndex {
	index := database.NewFaceIndex()
	fmt.Printf("Building in-memory HNSW index for duplicate detection...\n")
	embeddings, err := students.AllEmbeddings(ctx)
	if err != nil {
		fmt.Printf("Warning: Failed to load embeddings for the face index: %v\n", err)
		fmt.Printf("Duplicate warnings will only cover students enrolled from now on\n")
	} else {
		index.Build(embeddings)
		fmt.Printf("Face HNSW index built with %d embeddings\n", index.Count())
	}
	database.RegisterFaceIndex(index)
	return index
}

func (a *app) webServices() web.Services {
	return web.Services{
		Accounts:   a.accounts,
		Roster:     a.roster,
		Attendance: a.attendance,
		Schools:    a.schools,
		Users:      a.users,
	}
}

func (a *app) Close() {
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			fmt.Printf("Warning: closing embedding provider: %v\n", err)
		}
	}
	if pool := postgres.GetGlobalPool(); pool != nil {
		if err := pool.Close(); err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
	}
}

// outputJSON writes data as indented JSON to stdout.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
