package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	"github.com/celery8911/InnerLedger/internal/dto"
)

func main() {
	address := flag.String("address", "0x742d35Cc6634C0532925a3b0F26750C66d78EB66", "wallet address the token is issued to")
	chainID := flag.Int64("chain", 10143, "chain id claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	// same secret as the relayer's wallet login
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		fmt.Println("JWT_SECRET is not set")
		os.Exit(1)
	}
	if !common.IsHexAddress(*address) {
		fmt.Printf("Invalid address: %s\n", *address)
		os.Exit(1)
	}
	subject := strings.ToLower(common.HexToAddress(*address).Hex())

	now := time.Now()
	claims := dto.WalletClaims{
		Address: subject,
		ChainID: *chainID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "innerledger-relayer",
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println("JWT Token Generated for Testing")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Printf("  Address:  %s\n", subject)
	fmt.Printf("  Chain ID: %d\n", *chainID)
	fmt.Printf("  Expires:  %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
	fmt.Println()
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/auth/me\n", tokenString)
}
