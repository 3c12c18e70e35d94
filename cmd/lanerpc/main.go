package main

import "lane-rpc/cmd/lanerpc/command"

func main() {
	command.Execute()
}
