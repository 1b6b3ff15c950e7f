package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/stemsi/quizlive-backend/internal/config"
	"github.com/stemsi/quizlive-backend/internal/service"
	"golang.org/x/term"
)

// pin-hash prompts for a teacher PIN and prints the TEACHER_PIN_HASH line to
// put in .env, so the plain PIN never has to be stored.
func main() {
	cfg := config.Load()

	fmt.Println("=== Hash Teacher PIN ===")

	pin, err := prompt("Enter PIN: ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error reading PIN:", err)
		os.Exit(1)
	}
	if len(pin) < 4 || len(pin) > 32 {
		fmt.Fprintln(os.Stderr, "Error: PIN must be 4 to 32 characters")
		os.Exit(1)
	}

	confirm, err := prompt("Confirm PIN: ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error reading PIN:", err)
		os.Exit(1)
	}
	if confirm != pin {
		fmt.Fprintln(os.Stderr, "Error: PINs do not match")
		os.Exit(1)
	}

	hash, err := service.HashPIN(pin, cfg.BcryptCost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error hashing PIN:", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("TEACHER_PIN_HASH='%s'\n", hash)
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
