// Command gen-token prints HS256 tokens for servers running in test mode.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"collabnest/api"
)

func main() {
	var (
		count  = flag.Int("count", 1, "number of tokens to generate")
		prefix = flag.String("prefix", "user", "prefix for generated user IDs when count > 1")
		ttl    = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	secret := os.Getenv("TEST_JWT_SECRET")
	if secret == "" {
		log.Fatal("TEST_JWT_SECRET must be set")
	}
	if *count < 1 {
		log.Fatal("count must be at least 1")
	}
	args := flag.Args()
	if len(args) > 0 && *count > 1 {
		log.Fatal("explicit user ID cannot be provided when generating multiple tokens")
	}

	for _, userID := range userIDs(*count, *prefix, args) {
		tok, err := api.TestToken([]byte(secret), userID, *ttl)
		if err != nil {
			log.Fatalf("generate token: %v", err)
		}
		fmt.Println(tok)
	}
}

func userIDs(count int, prefix string, args []string) []string {
	if len(args) > 0 {
		return args[:1]
	}
	if count == 1 {
		return []string{prefix}
	}
	ids := make([]string, count)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", prefix, i+1)
	}
	return ids
}
