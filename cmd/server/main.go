package main

import "github.com/KevinKickass/OpenLogoBridge/cmd/server/cmd"

func main() {
	cmd.Execute()
}
