package main

import "github.com/timelyprogress/cmd/timely/cmd"

func main() {
	cmd.Execute()
}
