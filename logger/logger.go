package logger

import (
	"fmt"
	"log"
	"os"
	"time"
)

// JST 日本时区。赛事开跑时间的展示和日志时间戳统一使用这个时区，
// 内部计算一律用 UTC，只在格式化输出时转换
var JST = mustLoadJST()

func mustLoadJST() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		// 容器镜像缺少 tzdata 时退回固定偏移
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

var (
	// Info 正常日志，输出到 stdout
	Info *log.Logger

	// Error 错误日志，输出到 stderr
	Error *log.Logger
)

func init() {
	// 时间戳自己拼（带时区标注），不用 log 包自带的 flags
	Info = log.New(os.Stdout, "", 0)
	Error = log.New(os.Stderr, "", 0)
}

// stamp 生成带时区标注的本地时间前缀，如 2026/08/31 15:04:05 JST
func stamp() string {
	return time.Now().In(JST).Format("2006/01/02 15:04:05 MST")
}

// Println 输出正常日志到 stdout
func Println(v ...interface{}) {
	Info.Printf("%s %s", stamp(), fmt.Sprint(v...))
}

// Printf 格式化输出正常日志到 stdout
func Printf(format string, v ...interface{}) {
	Info.Printf("%s %s", stamp(), fmt.Sprintf(format, v...))
}

// Errorf 格式化输出错误日志到 stderr
func Errorf(format string, v ...interface{}) {
	Error.Printf("%s %s", stamp(), fmt.Sprintf(format, v...))
}

// Fatalf 输出致命错误并退出程序
func Fatalf(format string, v ...interface{}) {
	Error.Printf("%s %s", stamp(), fmt.Sprintf(format, v...))
	os.Exit(1)
}
