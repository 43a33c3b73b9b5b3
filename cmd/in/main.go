package main

import "github.com/oshokin/conda-channel-resource/cmd/in/cmd"

func main() {
	cmd.Execute()
}
