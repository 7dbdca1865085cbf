package main

import "github.com/blacktop/mxsym/cmd/mxsym/cmd"

func main() {
	cmd.Execute()
}
