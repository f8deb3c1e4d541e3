package db

import (
	"context"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// InitAdmin seeds the API admin account from ADMIN_USERNAME/ADMIN_PASSWORD
// when it does not exist yet.
func InitAdmin(database *Database) {
	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminUsername == "" || adminPassword == "" {
		return
	}

	var count int
	err := database.ExecQueryRow(context.Background(), "SELECT COUNT(*) FROM users WHERE username = $1", adminUsername).Scan(&count)
	if err != nil {
		log.Fatal(err)
	}
	if count > 0 {
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal(err)
	}
	_, err = database.Exec(context.Background(), "INSERT INTO users (username, password) VALUES ($1, $2)", adminUsername, string(hashed))
	if err != nil {
		log.Fatal(err)
	}
	log.Println("Admin user created successfully.")
}
