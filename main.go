package main

import "github.com/MontelAle/participium-sub001/internal/cli"

func main() {
	cli.Execute()
}
