package main

import "github.com/marketlens/marketlens/cmd"

func main() {
	cmd.Execute()
}
