package main

import (
	"log"

	"github.com/spf13/cobra"
)

const releaseVersion = "0.1.0"

// HitDuel 入口：serve 启动房间服务，join 以参与者身份接入
func main() {
	log.SetFlags(0)
	cobra.CheckErr(newRootCmd().Execute())
}
