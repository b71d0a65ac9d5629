// Command vault is an operator tool for credential blobs, webhook
// signatures and local session tokens.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"time"

	"paylink/internal/crypto"
	"paylink/internal/domain/business"
	middlewarex "paylink/internal/http/middleware"
	"paylink/internal/provider"
)

const usage = `usage:
  vault keygen
  vault encrypt <json>           (ENCRYPTION_KEY_BASE64)
  vault decrypt <blob>           (ENCRYPTION_KEY_BASE64)
  vault sign <secret> < body     prints the webhook signature of stdin
  vault token <userId> [email]   (JWT_SECRET) prints a 24h session token`

func main() {
	if len(os.Args) < 2 {
		fail(usage)
	}
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "keygen":
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			fail(err.Error())
		}
		fmt.Println(base64.StdEncoding.EncodeToString(key))

	case "encrypt":
		need(args, 1)
		blob, err := vault().Encrypt(args[0])
		if err != nil {
			fail(err.Error())
		}
		fmt.Println(blob)

	case "decrypt":
		need(args, 1)
		plain, err := vault().Decrypt(args[0])
		if err != nil {
			fail(err.Error())
		}
		fmt.Println(plain)

	case "sign":
		need(args, 1)
		body, err := io.ReadAll(os.Stdin)
		if err != nil {
			fail(err.Error())
		}
		fmt.Println(provider.Sign(body, args[0]))

	case "token":
		need(args, 1)
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			fail("JWT_SECRET is not set")
		}
		c := business.Caller{ID: args[0]}
		if len(args) > 1 {
			c.Email = args[1]
		}
		tok, err := middlewarex.IssueToken(secret, c, 24*time.Hour)
		if err != nil {
			fail(err.Error())
		}
		fmt.Println(tok)

	default:
		fail(usage)
	}
}

func vault() *crypto.Vault {
	keyB64 := os.Getenv("ENCRYPTION_KEY_BASE64")
	if keyB64 == "" {
		fail("ENCRYPTION_KEY_BASE64 is not set")
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		fail("ENCRYPTION_KEY_BASE64 must be valid base64 of 32 bytes")
	}
	v, err := crypto.NewVault(key)
	if err != nil {
		fail(err.Error())
	}
	return v
}

func need(args []string, n int) {
	if len(args) < n {
		fail(usage)
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
