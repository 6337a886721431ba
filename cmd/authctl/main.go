package main

import "github.com/NovuntFinance/authgate/cmd/authctl/cmd"

func main() {
	cmd.Execute()
}
