package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	merrors "github.com/vango-dev/motion/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┳┳┓┏┓┏┳┓┳┏┓┳┓
  ┃┃┃┃┃ ┃ ┃┃┃┃┃
  ┛ ┗┗┛ ┻ ┻┗┛┛┗
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "motion",
		Short: "Server-side sessions for reactive components",
		Long: `Motion hosts reactive components over WebSocket.

Each client connection gets a session that owns one component.
Client motions and pub/sub broadcasts are serialized per session,
and the component is re-rendered only when its fingerprint changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var noColor bool
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "Disable colored output")
	rootCmd.PersistentPreRun = func(*cobra.Command, []string) {
		merrors.SetColors(!noColor)
	}

	rootCmd.AddCommand(
		serveCmd(),
		publishCmd(),
		explainCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		merrors.PrintError(err)
		os.Exit(1)
	}
}

// newLogger builds the process logger.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
