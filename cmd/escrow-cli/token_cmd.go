package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"landescrow/config"
	"landescrow/rpc"
)

var tokenNow = time.Now

func runTokenCommand(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("token", stderr)
	var (
		subject   string
		secretEnv string
		issuer    string
		ttl       time.Duration
	)
	fs.StringVar(&subject, "subject", "", "Address the token authenticates as")
	fs.StringVar(&secretEnv, "secret-env", config.DefaultJWTSecretEnv, "Environment variable holding the shared HS256 secret")
	fs.StringVar(&issuer, "issuer", config.DefaultJWTIssuer, "Issuer claim expected by the daemon")
	fs.DurationVar(&ttl, "ttl", rpc.DefaultTokenTTL, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	subject = strings.TrimSpace(subject)
	if !common.IsHexAddress(subject) {
		return printEscrowError(stderr, "--subject must be a 0x-prefixed address")
	}
	secret := strings.TrimSpace(os.Getenv(secretEnv))
	if secret == "" {
		return printEscrowError(stderr, fmt.Sprintf("environment variable %s is empty", secretEnv))
	}
	if ttl <= 0 {
		return printEscrowError(stderr, "--ttl must be positive")
	}
	token, err := rpc.IssueToken([]byte(secret), issuer, common.HexToAddress(subject), ttl, tokenNow())
	if err != nil {
		return printEscrowError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, token)
	return 0
}
