// Command adminpass prints a bcrypt hash for ADMIN_PASSWORD_HASH.
//
//	adminpass            read the password from stdin
//	adminpass -cost 13   use a higher bcrypt cost
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sakif/clickforcharity/internal/auth"
)

func main() {
	cost := flag.Int("cost", 12, "bcrypt cost")
	flag.Parse()

	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintf(os.Stderr, "adminpass: reading password: %v\n", err)
		os.Exit(1)
	}
	password := strings.TrimRight(line, "\r\n")
	if len(password) < 8 {
		fmt.Fprintln(os.Stderr, "adminpass: password must be at least 8 characters")
		os.Exit(1)
	}

	hash, err := auth.NewPasswordServiceWithCost(*cost).Hash(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "adminpass: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
