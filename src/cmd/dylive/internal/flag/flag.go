// Package flag 定义命令行参数，并能在不用配置文件时由参数直接生成配置。
package flag

import (
	"os"

	"github.com/alecthomas/kingpin"

	"github.com/dylive-go/dylive-go/src/configs"
	"github.com/dylive-go/dylive-go/src/consts"
)

var (
	app = kingpin.New(consts.AppName, "A Douyin live room monitor.").Version(consts.AppVersion)

	Debug      = app.Flag("debug", "Enable debug mode.").Default("false").Bool()
	Conf       = app.Flag("config", "Path to the config file (config.yml).").Short('c').String()
	RPCBind    = app.Flag("rpc-bind", "RPC bind address.").Default(":8080").String()
	DBPath     = app.Flag("db-path", "Path to the sqlite database file.").Default("data/dylive.db").String()
	SignScript = app.Flag("sign-script", "Path to the signature javascript file.").Default("sign.js").String()
	TTWid      = app.Flag("ttwid", "Manually specified ttwid cookie.").String()
	LogDir     = app.Flag("log-dir", "Folder to output logs.").Default("./").String()
	Rooms      = app.Flag("room", "Live room id to monitor, can be repeated.").Strings()
)

func init() {
	app.HelpFlag.Short('h')
	kingpin.MustParse(app.Parse(os.Args[1:]))
}

func GenConfigFromFlags() *configs.Config {
	cfg := configs.NewConfig()
	cfg.Debug = *Debug
	cfg.RPC.Bind = *RPCBind
	cfg.Database.Path = *DBPath
	cfg.Douyin.SignScript = *SignScript
	cfg.Douyin.TTWid = *TTWid
	cfg.Log.OutPutFolder = *LogDir
	for _, room := range *Rooms {
		cfg.LiveRooms = append(cfg.LiveRooms, configs.LiveRoom{
			LiveID:        room,
			MonitorType:   consts.MonitorType24h,
			AutoReconnect: true,
		})
	}
	return cfg
}
