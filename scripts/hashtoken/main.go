// Command hashtoken prints the bcrypt hash to store in ADMIN_TOKEN_HASH.
//
//	go run ./scripts/hashtoken -token "$(openssl rand -hex 24)"
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	token := flag.String("token", "", "admin token; read from stdin when empty")
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	value := *token
	if value == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("read token: %v", err)
		}
		value = strings.TrimSpace(line)
	}
	if value == "" {
		log.Fatal("token must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(value), *cost)
	if err != nil {
		log.Fatalf("hash token: %v", err)
	}
	fmt.Printf("ADMIN_TOKEN_HASH=%s\n", hash)
}
