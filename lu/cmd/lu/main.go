package main

import (
	"github.com/listenup/listenup/lu/cmd/lu/commands"
	_ "github.com/listenup/listenup/lu/cmd/lu/commands/assets"
	_ "github.com/listenup/listenup/lu/cmd/lu/commands/get"
	_ "github.com/listenup/listenup/lu/cmd/lu/commands/jobs"
	_ "github.com/listenup/listenup/lu/cmd/lu/commands/retry"
	_ "github.com/listenup/listenup/lu/cmd/lu/commands/submit"
	_ "github.com/listenup/listenup/lu/cmd/lu/commands/watch"
)

func main() {
	commands.Execute()
}
