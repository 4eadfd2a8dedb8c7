package main

import (
	"fmt"
	"os"

	"github.com/civintel/cityledger_backend/config"
	"github.com/civintel/cityledger_backend/models"
)

// migrate runs schema migrations as a standalone job, for deployments that
// start the API with SKIP_MIGRATIONS=true.
func main() {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	if err := models.Migrate(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrate complete")
}
