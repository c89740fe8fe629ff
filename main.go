package main

import "github.com/timvw/tpik/cmd"

func main() {
	cmd.Execute()
}
