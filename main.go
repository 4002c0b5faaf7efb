package main

import "github.com/babevm/babevm-sub001/cmd"

func main() {
	cmd.Execute()
}
