package storage

// schema 建表语句，全部幂等，启动时直接执行
var schema = []string{
	`CREATE TABLE IF NOT EXISTS live_rooms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		live_id TEXT NOT NULL UNIQUE,
		room_id TEXT NOT NULL DEFAULT '',
		anchor_name TEXT NOT NULL DEFAULT '',
		anchor_id TEXT NOT NULL DEFAULT '',
		monitor_type TEXT NOT NULL DEFAULT '24h',
		status TEXT NOT NULL DEFAULT 'stopped',
		auto_reconnect INTEGER NOT NULL DEFAULT 1,
		reconnect_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		last_start_time INTEGER NOT NULL DEFAULT 0,
		last_end_time INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS live_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		live_id TEXT NOT NULL,
		room_id TEXT NOT NULL DEFAULT '',
		anchor_name TEXT NOT NULL DEFAULT '',
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL DEFAULT 0,
		end_reason TEXT NOT NULL DEFAULT '',
		chat_count INTEGER NOT NULL DEFAULT 0,
		gift_count INTEGER NOT NULL DEFAULT 0,
		gift_value INTEGER NOT NULL DEFAULT 0,
		peak_viewers INTEGER NOT NULL DEFAULT 0,
		new_followers INTEGER NOT NULL DEFAULT 0,
		like_count INTEGER NOT NULL DEFAULT 0,
		member_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_live_id ON live_sessions(live_id, start_time)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		live_id TEXT NOT NULL,
		session_id INTEGER NOT NULL DEFAULT 0,
		msg_id INTEGER NOT NULL DEFAULT 0,
		user_id INTEGER NOT NULL DEFAULT 0,
		user_name TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_live_id ON chat_messages(live_id, id)`,
	`CREATE TABLE IF NOT EXISTS gift_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		live_id TEXT NOT NULL,
		session_id INTEGER NOT NULL DEFAULT 0,
		trace_id TEXT NOT NULL DEFAULT '',
		group_id INTEGER NOT NULL DEFAULT 0,
		gift_id INTEGER NOT NULL DEFAULT 0,
		gift_name TEXT NOT NULL DEFAULT '',
		diamond_count INTEGER NOT NULL DEFAULT 0,
		delta_count INTEGER NOT NULL DEFAULT 0,
		delta_value INTEGER NOT NULL DEFAULT 0,
		combo_count INTEGER NOT NULL DEFAULT 0,
		user_id INTEGER NOT NULL DEFAULT 0,
		user_name TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_gift_live_id ON gift_messages(live_id, id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_gift_trace_id ON gift_messages(trace_id) WHERE trace_id != ''`,
	`CREATE TABLE IF NOT EXISTS room_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		live_id TEXT NOT NULL,
		session_id INTEGER NOT NULL DEFAULT 0,
		current_viewers INTEGER NOT NULL DEFAULT 0,
		total_viewers INTEGER NOT NULL DEFAULT 0,
		chat_count INTEGER NOT NULL DEFAULT 0,
		gift_value INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stats_live_id ON room_stats(live_id, id)`,
	`CREATE TABLE IF NOT EXISTS user_contributions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		live_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		user_name TEXT NOT NULL DEFAULT '',
		gift_value INTEGER NOT NULL DEFAULT 0,
		gift_count INTEGER NOT NULL DEFAULT 0,
		chat_count INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(live_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contrib_value ON user_contributions(live_id, gift_value DESC)`,
	`CREATE TABLE IF NOT EXISTS system_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		live_id TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_live_id ON system_events(live_id, id)`,
}
