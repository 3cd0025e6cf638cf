// Operator helper: prints the current TOTP code for the admin secret, or
// provisions a fresh secret with -new.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pquerna/otp/totp"
)

func main() {
	newSecret := flag.Bool("new", false, "generate a fresh TOTP secret")
	flag.Parse()

	if *newSecret {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      "shadowpool",
			AccountName: "admin",
		})
		if err != nil {
			fmt.Printf("Error generating TOTP secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Secret: %s\n", key.Secret())
		fmt.Printf("Provisioning URL: %s\n", key.URL())
		return
	}

	secret := os.Getenv("ADMIN_TOTP_SECRET")
	if secret == "" {
		fmt.Println("ADMIN_TOTP_SECRET is not set")
		os.Exit(1)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		fmt.Printf("Error generating TOTP code: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Current TOTP Code: %s\n", code)
	fmt.Printf("Valid for: ~30 seconds\n")
}
