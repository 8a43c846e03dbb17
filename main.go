package main

import "github.com/mty/chordtokit/cmd"

func main() {
	cmd.Execute()
}
