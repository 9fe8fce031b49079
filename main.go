package main

import "turnmemory/cmd"

func main() {
	cmd.Execute()
}
