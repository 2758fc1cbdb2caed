// Command linova is a headless Linova client: it signs in, keeps the local
// cache in sync with the backend and prints learning progress.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "linova",
	Short:         "Sync and inspect Linova learning progress",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default ./linova.yaml)")
	pf.String("base-url", "", "backend base URL")
	pf.String("cache", "", "path of the on-device cache database")
	pf.String("log-mode", "", "production (JSON) or development (console)")
	pf.Duration("timeout", 0, "HTTP request timeout")

	rootCmd.AddCommand(signUpCmd, loginCmd, logoutCmd, statusCmd, watchCmd,
		lessonCmd, moduleCmd, resetPasswordCmd, openLinkCmd)
}

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
