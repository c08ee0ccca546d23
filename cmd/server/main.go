package main

import (
	"os"

	"beru/backend/internal/app"
)

// @title        Beru API
// @version      1.0
// @description  Relays royal commands to a hosted language model and keeps a history of the answers.
// @BasePath     /
func main() {
	os.Exit(app.Run())
}
