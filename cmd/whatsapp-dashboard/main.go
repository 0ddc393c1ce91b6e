package main

import (
	"fmt"
	"os"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/app"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/infra/config"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Create and run app
	application, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
