package main

import (
	"context"

	"github.com/variable-kang/0.9to0.10MirrorMaker/command"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/logger"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/safego"
)

func main() {
	defer safego.Recovery(true)
	if err := command.Execute(context.Background()); err != nil {
		logger.Fatalf("mirrormaker exited: %v", err)
	}
}
