package main

import "github.com/KStasi/pixel-map/cmd/client/cmd"

func main() {
	cmd.Execute()
}
