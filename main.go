package main

import "github.com/perchbot/perch/cmd"

func main() {
	cmd.Execute()
}
