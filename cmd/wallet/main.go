package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Maphikza/sip-privacy-wallet/internal/config"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "sip-wallet",
	Short: "Stealth payment wallet",
	Long: `A stealth payment wallet: publish one meta-address, receive to
unlinkable one-time addresses, and pay through native or delegated privacy
providers with an encrypted compliance trail.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// A missing .env is normal; SIP_* variables may come from the shell.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Error loading .env: %v", err)
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	settings := config.Current()
	if err := logger.Init(settings.LogFile); err != nil {
		log.Fatalf("Error opening log file: %v", err)
	}
	logger.SetLevel(settings.LogLevel)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
