package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/school-attendance/internal/database"
	"github.com/kozaktomas/school-attendance/internal/web/handlers"
	"github.com/kozaktomas/school-attendance/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	govOnly    = []database.Role{database.RoleGovAdmin}
	admins     = []database.Role{database.RoleGovAdmin, database.RoleSchoolAdmin, database.RoleCoAdmin}
	enrollers  = []database.Role{database.RoleSchoolAdmin, database.RoleCoAdmin}
	schoolRole = []database.Role{database.RoleSchoolAdmin, database.RoleCoAdmin, database.RoleTeacher}
)

func (s *Server) setupRoutes() {
	authHandler := handlers.NewAuthHandler(s.services.Accounts, s.tokens)
	schoolsHandler := handlers.NewSchoolsHandler(s.services.Accounts, s.services.Schools)
	sectionsHandler := handlers.NewSectionsHandler(s.services.Roster)
	studentsHandler := handlers.NewStudentsHandler(s.services.Roster)
	usersHandler := handlers.NewUsersHandler(s.services.Accounts)
	attendanceHandler := handlers.NewAttendanceHandler(s.services.Attendance)

	// Health check and metrics (no auth required)
	s.router.Get("/api/health", handlers.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.tokens, s.services.Users))

			r.Get("/auth/me", authHandler.Me)

			// Schools
			r.With(middleware.RequireRole(govOnly...)).Post("/schools", schoolsHandler.Create)
			r.With(middleware.RequireRole(admins...)).Get("/schools", schoolsHandler.List)
			r.With(middleware.RequireRole(schoolRole...)).Get("/schools/my", schoolsHandler.My)

			// Sections
			r.With(middleware.RequireRole(admins...)).Post("/sections", sectionsHandler.Create)
			r.Get("/sections", sectionsHandler.List)

			// Students and enrollment
			r.With(middleware.RequireRole(admins...)).Post("/students", studentsHandler.Create)
			r.Get("/students", studentsHandler.List)
			r.With(middleware.RequireRole(enrollers...)).Post("/students/enroll", studentsHandler.Enroll)
			r.With(middleware.RequireRole(enrollers...)).Post("/enrollment/students", studentsHandler.Enroll)

			// Users
			r.With(middleware.RequireRole(admins...)).Post("/users/teachers", usersHandler.CreateTeacher)
			r.With(middleware.RequireRole(database.RoleGovAdmin, database.RoleSchoolAdmin)).Post("/users/coadmins", usersHandler.CreateCoAdmin)
			r.With(middleware.RequireRole(admins...)).Get("/users", usersHandler.List)
			r.With(middleware.RequireRole(govOnly...)).Post("/users/resend-credentials", usersHandler.ResendCredentials)

			// Attendance
			r.Post("/attendance/mark", attendanceHandler.Mark)
			r.Post("/attendance/manual-mark", attendanceHandler.ManualMark)
			r.Get("/attendance/summary", attendanceHandler.Summary)
			r.Get("/attendance/history", attendanceHandler.History)
		})
	})
}
