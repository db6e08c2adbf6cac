package main

import (
	"log"

	"github.com/bhoriuchi/graphql-go-client/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatalf("gqlc failed: %v", err)
	}
}
