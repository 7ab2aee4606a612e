package main

import (
	"github.com/vanetguard/vanetguard/cmd/vanetguard/commands"
)

func main() {
	commands.Execute()
}
