package main

import "github.com/radieske/prediction-bet-sync/internal/cli"

func main() {
	cli.Execute()
}
