package main

import (
	"github.com/joho/godotenv"

	"vault-guard/internal/cli"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	cli.Execute()
}
