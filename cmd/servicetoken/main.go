// Command servicetoken prints a bearer token for the /status API, signed
// with STATUS_API_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/discord-age-gate/internal/utils"
)

func main() {
	_ = godotenv.Load()
	subject := flag.String("sub", "discord-bot", "service name stored in the token subject")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "token lifetime")
	flag.Parse()

	tok, err := utils.NewServiceToken(os.Getenv("STATUS_API_SECRET"), *subject, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "servicetoken:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	fmt.Fprintln(os.Stderr, "expires", tok.Exp.Format(time.RFC3339))
}
