package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flagValue reads a flag registered in init(). A lookup error means the flag
// name or type is wrong in code, so it panics instead of returning.
func flagValue[T any](cmd *cobra.Command, name string, get func(*pflag.FlagSet, string) (T, error)) T {
	val, err := get(cmd.Flags(), name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return flagValue(cmd, name, (*pflag.FlagSet).GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return flagValue(cmd, name, (*pflag.FlagSet).GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return flagValue(cmd, name, (*pflag.FlagSet).GetString)
}

// similarityFlag reads a cosine similarity flag. Zero means unset; anything
// else must lie in (0, 1].
func similarityFlag(cmd *cobra.Command, name string) (float64, error) {
	val := flagValue(cmd, name, (*pflag.FlagSet).GetFloat64)
	if val < 0 || val > 1 {
		return 0, fmt.Errorf("--%s must be between 0 and 1, got %g", name, val)
	}
	return val, nil
}
