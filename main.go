package main

import "github.com/pedidolabs/pedidobot/cmd"

func main() {
	cmd.Execute()
}
