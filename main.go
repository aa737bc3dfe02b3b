package main

import "github.com/iksnae/ragulate/cmd"

func main() {
	cmd.Execute()
}
