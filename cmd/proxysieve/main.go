package main

import (
	"proxysieve/internal/app"

	"github.com/charmbracelet/log"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal("proxysieve terminated", "error", err)
	}
}
