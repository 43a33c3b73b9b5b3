package main

import "github.com/oshokin/conda-channel-resource/cmd/out/cmd"

func main() {
	cmd.Execute()
}
