// Command journalimport imports trading journal snapshot archives from the
// command line.
package main

import "github.com/JonMunkholm/tradejournal/internal/cli"

func main() {
	cli.Execute()
}
