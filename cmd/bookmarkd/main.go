package main

import (
	"log"

	"github.com/patric-chuzhbe/bookmarkd/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		log.Fatalf("failed to initialize the application: %v", err)
	}
	defer application.Close()

	if err := application.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
