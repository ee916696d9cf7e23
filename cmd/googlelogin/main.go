// Command googlelogin はGoogleログインのデモWebアプリケーション。
//
// 使い方:
//
//	googlelogin [serve|migrate|cleanup|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/googlelogin/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "googlelogin: %v\n", err)
		os.Exit(1)
	}
}
