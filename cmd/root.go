package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Face recognition attendance backend for schools",
	Long: `Attendance is the backend of a school attendance system. Teachers scan a
student's face, the photo is matched against the enrolled students of the
section and the student is marked present for the day.

It serves the HTTP API and provides maintenance commands for migrations,
seeding, bulk enrollment and dry-run matching.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
