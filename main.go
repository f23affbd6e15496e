package main

import "github.com/Manu343726/elfkit/cmd"

func main() {
	cmd.Execute()
}
