//go:build ignore

// Prints bcrypt hashes for seeding users.password_hash by hand.
//
//	go run scripts/genhash.go <password>...
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: genhash <password>...")
		os.Exit(2)
	}

	for _, pass := range os.Args[1:] {
		if len(pass) < 6 {
			fmt.Fprintf(os.Stderr, "skipping %q: passwords need at least 6 characters\n", pass)
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			continue
		}
		fmt.Println(string(hash))
	}
}
