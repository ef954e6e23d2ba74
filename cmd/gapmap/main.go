// 命令行入口：对本地地点文件做聚类、缺口与热力图分析，或从在线来源抓取地点
package main

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
