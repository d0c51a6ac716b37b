package main

import "market-anomaly-alerts/internal/cli"

func main() {
	cli.Execute()
}
