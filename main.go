package main

import "mediacore/cmd"

func main() {
	cmd.Execute()
}
