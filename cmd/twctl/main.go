package main

import "github.com/SoarinFerret/TimeWarden/cmd/twctl/arg"

func main() {
	arg.Execute()
}
