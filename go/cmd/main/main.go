package main

import (
	"github.com/lunixbochs/objimage/go/cmd"

	_ "github.com/lunixbochs/objimage/go/cmd/detect"
	_ "github.com/lunixbochs/objimage/go/cmd/imgdump"
)

func main() { cmd.Main() }
