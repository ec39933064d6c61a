package main

import "kvstore-sol/cmd/kvstore/cmd"

func main() {
	cmd.Execute()
}
