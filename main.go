package main

import "github.com/KaramelBytes/finai-cli/cmd"

func main() {
	cmd.Execute()
}
