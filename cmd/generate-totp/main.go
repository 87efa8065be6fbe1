package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	enroll := flag.Bool("new", false, "generate a new TOTP secret instead of a code")
	account := flag.String("account", "admin", "account name shown in the authenticator app")
	password := flag.String("password", "", "also print the bcrypt hash of this admin password")
	flag.Parse()

	if *enroll {
		key, err := totp.Generate(totp.GenerateOpts{Issuer: "InnerLedger Relayer", AccountName: *account})
		if err != nil {
			fmt.Printf("Error generating TOTP secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("ADMIN_TOTP_SECRET=%s\n", key.Secret())
		fmt.Printf("Authenticator URL: %s\n", key.URL())
	} else {
		// 生成当前 TOTP code
		secret := os.Getenv("ADMIN_TOTP_SECRET")
		if secret == "" {
			fmt.Println("ADMIN_TOTP_SECRET is not set (use -new to create one)")
			os.Exit(1)
		}
		code, err := totp.GenerateCode(secret, time.Now())
		if err != nil {
			fmt.Printf("Error generating TOTP code: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Current TOTP Code: %s\n", code)
		fmt.Printf("Valid for: ~%d seconds\n", 30-time.Now().Unix()%30)
	}

	if *password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
		if err != nil {
			fmt.Printf("Error hashing password: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("ADMIN_PASSWORD_HASH=%s\n", hash)
	}
}
