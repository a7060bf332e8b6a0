package types

// LiveID 直播间短链 ID（live.douyin.com/<LiveID>）
type LiveID string

// RoomID 平台内部的数字房间 ID（从房间页解析得到）
type RoomID string
