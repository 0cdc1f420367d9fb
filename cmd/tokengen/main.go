// tokengen mints HS256 access tokens accepted by the server when
// AUTH_ENABLED is set.  The secret defaults to JWT_SECRET from the
// environment or a .env file.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/ticket-reservation/internal/config"
	"github.com/iliyamo/ticket-reservation/internal/utils"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	var (
		subject string
		role    string
		secret  string
		ttl     time.Duration
	)
	flags := pflag.NewFlagSet("tokengen", pflag.ContinueOnError)
	flags.StringVarP(&subject, "subject", "s", "", "token subject, e.g. a client id (required)")
	flags.StringVarP(&role, "role", "r", "CUSTOMER", "role claim: CUSTOMER or ADMIN")
	flags.StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HS256 signing secret")
	flags.DurationVar(&ttl, "ttl", config.AccessTokenTTL(), "token lifetime")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if subject == "" {
		return errors.New("--subject is required")
	}

	tok, err := utils.NewAccessToken(secret, subject, role, ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
	return nil
}
