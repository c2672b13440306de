package main

import "github.com/pfrederiksen/canyon-gpx/internal/cli"

func main() {
	cli.Execute()
}
