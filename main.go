package main

import "ShadowDB/cli"

func main() {
	cli.Execute()
}
