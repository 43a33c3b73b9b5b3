package main

import "github.com/oshokin/conda-channel-resource/cmd/check/cmd"

func main() {
	cmd.Execute()
}
