package main

import "github.com/oshokin/macdeploy/cmd/macdeploy/cmd"

func main() {
	cmd.Execute()
}
